package memory

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the store budget and the relevance scoring constants.
// The constants shape eviction (importance dominates, recency decays to
// zero over RecencyWindow) and are tunable rather than fixed.
type Config struct {
	// MaxTokens is the store budget.
	MaxTokens int
	// CharsPerToken converts serialized payload length into a token estimate.
	CharsPerToken int
	// ImportanceWeight multiplies importance in the relevance score.
	ImportanceWeight float64
	// RecencyWindow is how long the recency bonus takes to decay to zero.
	RecencyWindow time.Duration
	// FreshWindow makes every entry younger than it visible to all units.
	FreshWindow time.Duration
	// PruneTarget is the fraction of MaxTokens a prune reduces usage to.
	PruneTarget float64
	// ArchiveThreshold is the minimum importance archived on eviction.
	ArchiveThreshold int
	// UnitImportance is the minimum importance visible to every unit.
	UnitImportance int
	// ArchiveImportance is the minimum importance retrieved from the archive for every unit.
	ArchiveImportance int
	// DefaultImportance applies when Put is called without WithImportance.
	DefaultImportance int
}

// DefaultConfig returns the standard budget and scoring constants.
func DefaultConfig() Config {
	return Config{
		MaxTokens:         100000,
		CharsPerToken:     4,
		ImportanceWeight:  10,
		RecencyWindow:     50 * time.Minute,
		FreshWindow:       5 * time.Minute,
		PruneTarget:       0.7,
		ArchiveThreshold:  6,
		UnitImportance:    7,
		ArchiveImportance: 9,
		DefaultImportance: 5,
	}
}

// Validate checks that the configuration can bound the store.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.CharsPerToken <= 0 {
		return fmt.Errorf("chars per token must be positive, got %d", c.CharsPerToken)
	}
	if c.PruneTarget <= 0 || c.PruneTarget > 1 {
		return fmt.Errorf("prune target must be in (0, 1], got %v", c.PruneTarget)
	}
	if c.RecencyWindow < 0 || c.FreshWindow < 0 {
		return errors.New("recency and fresh windows must not be negative")
	}
	return nil
}

// targetTokens is the usage a prune reduces the store to.
func (c Config) targetTokens() int {
	return int(c.PruneTarget * float64(c.MaxTokens))
}
