package models

import (
	"errors"
	"fmt"
	"strings"
)

// ProjectConfig describes the application a run should generate.
type ProjectConfig struct {
	// Name is the project name. Required.
	Name string `json:"name" yaml:"name"`
	// Description is free-form text handed to every unit.
	Description string `json:"description,omitempty" yaml:"description"`
	// Database names the storage engine the data unit targets.
	Database string `json:"database,omitempty" yaml:"database"`
	// Features toggles optional pipeline phases.
	Features Features `json:"features" yaml:"features"`
	// Env lists environment variables the project needs regardless of unit output.
	Env []string `json:"env,omitempty" yaml:"env"`
}

// Features toggles optional pipeline phases.
type Features struct {
	Auth         bool     `json:"auth" yaml:"auth"`
	UI           bool     `json:"ui" yaml:"ui"`
	Integrations []string `json:"integrations,omitempty" yaml:"integrations"`
	Deploy       bool     `json:"deploy" yaml:"deploy"`
}

// Validate checks required fields.
func (c *ProjectConfig) Validate() error {
	if c == nil {
		return errors.New("project config is nil")
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("project name is required")
	}
	for _, name := range c.Features.Integrations {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("project %s: empty integration name", c.Name)
		}
	}
	return nil
}
