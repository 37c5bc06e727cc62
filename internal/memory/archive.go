package memory

import (
	"regexp"
	"sync"
	"time"

	"github.com/ShayCichocki/forge/pkg/models"
)

// Archive retains high-importance entries evicted from a Store for the
// lifetime of a run. Archived entries keep their unit type and importance.
type Archive struct {
	mu      sync.RWMutex
	entries []*models.ContextEntry
	byID    map[string]int
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{byID: make(map[string]int)}
}

// Add copies an entry into the archive, stamped with the archival time.
// Archiving an ID twice replaces the earlier copy.
func (a *Archive) Add(e *models.ContextEntry, at time.Time) {
	c := e.Clone()
	c.ArchivedAt = &at

	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.byID[c.ID]; ok {
		a.entries[i] = c
		return
	}
	a.byID[c.ID] = len(a.entries)
	a.entries = append(a.entries, c)
}

// Retrieve returns archived entries owned by unitType or with importance of
// at least minImportance, oldest archived first.
func (a *Archive) Retrieve(unitType models.UnitType, minImportance int) []*models.ContextEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*models.ContextEntry
	for _, e := range a.entries {
		if (unitType != "" && e.UnitType == unitType) || e.Importance >= minImportance {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Search returns archived entries whose key matches re.
func (a *Archive) Search(re *regexp.Regexp) []*models.ContextEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*models.ContextEntry
	for _, e := range a.entries {
		if re.MatchString(e.Key) {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Len returns the number of archived entries.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Tokens returns the summed token estimate of archived entries.
func (a *Archive) Tokens() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	total := 0
	for _, e := range a.entries {
		total += e.Tokens
	}
	return total
}

// Entries returns copies of all archived entries.
func (a *Archive) Entries() []*models.ContextEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*models.ContextEntry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Clone())
	}
	return out
}

func (a *Archive) replace(entries []*models.ContextEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = make([]*models.ContextEntry, 0, len(entries))
	a.byID = make(map[string]int, len(entries))
	for _, e := range entries {
		if i, ok := a.byID[e.ID]; ok {
			a.entries[i] = e
			continue
		}
		a.byID[e.ID] = len(a.entries)
		a.entries = append(a.entries, e)
	}
}
