package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/forge/pkg/models"
)

// DefaultProjectFile is the project description read by `forge run` and
// `forge plan` when no path is given.
const DefaultProjectFile = "forge.yaml"

// LoadProject reads and validates a project description. Unknown fields are
// rejected so typos in feature names fail loudly.
func LoadProject(path string) (*models.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project %s: %w", path, err)
	}
	project, err := ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", path, err)
	}
	return project, nil
}

// ParseProject decodes a YAML project description.
func ParseProject(data []byte) (*models.ProjectConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var project models.ProjectConfig
	if err := dec.Decode(&project); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty project description")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}
	return &project, nil
}
