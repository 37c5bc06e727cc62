package memory

import (
	"time"

	"github.com/ShayCichocki/forge/pkg/models"
)

// Score computes the relevance of an entry at time now:
// importance*ImportanceWeight plus a recency bonus that starts at the window
// length in minutes and decays linearly to zero.
func (c Config) Score(e *models.ContextEntry, now time.Time) float64 {
	age := now.Sub(e.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := (c.RecencyWindow - age).Minutes()
	if recency < 0 {
		recency = 0
	}
	return float64(e.Importance)*c.ImportanceWeight + recency
}
