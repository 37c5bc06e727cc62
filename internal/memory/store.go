// Package memory provides the token-budgeted context store shared between
// pipeline phases and the archive that retains what it evicts.
package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/pkg/models"
)

// Observer receives store activity. Calls happen after the store lock is
// released, so observers may call back into the store.
type Observer interface {
	ObservePrune(PruneResult)
	ObserveUsage(Stats)
}

// Observers fans store activity out to several observers in order.
type Observers []Observer

// ObservePrune forwards r to every non-nil observer.
func (o Observers) ObservePrune(r PruneResult) {
	for _, obs := range o {
		if obs != nil {
			obs.ObservePrune(r)
		}
	}
}

// ObserveUsage forwards s to every non-nil observer.
func (o Observers) ObserveUsage(s Stats) {
	for _, obs := range o {
		if obs != nil {
			obs.ObserveUsage(s)
		}
	}
}

// Stats summarizes store occupancy.
type Stats struct {
	ActiveEntries  int     `json:"active_entries"`
	ArchiveEntries int     `json:"archive_entries"`
	TotalTokens    int     `json:"total_tokens"`
	MaxTokens      int     `json:"max_tokens"`
	Utilization    float64 `json:"utilization"`
}

// PruneResult describes one prune cycle.
type PruneResult struct {
	Evicted     int
	Archived    int
	TokensFreed int
	EvictedKeys []string
}

// Store is a bounded collection of context entries. All mutation is
// serialized through mu; concurrent Put calls from completing tasks are safe.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	entries []*models.ContextEntry
	used    int
	seq     uint64

	archive  *Archive
	now      func() time.Time
	logger   *zap.Logger
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithArchive shares an existing archive with the store.
func WithArchive(a *Archive) Option {
	return func(s *Store) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers an observer for prune and usage updates.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// NewStore creates a store with the given budget and scoring configuration.
func NewStore(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	s := &Store{
		cfg:     cfg,
		archive: NewArchive(),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("memory")
	return s, nil
}

// PutOption configures a single Put.
type PutOption func(*models.ContextEntry)

// WithUnitType marks the entry as owned by a unit type.
func WithUnitType(t models.UnitType) PutOption {
	return func(e *models.ContextEntry) {
		e.UnitType = t
	}
}

// WithImportance sets the entry importance, clamped to 0..10.
func WithImportance(importance int) PutOption {
	return func(e *models.ContextEntry) {
		switch {
		case importance < 0:
			importance = 0
		case importance > 10:
			importance = 10
		}
		e.Importance = importance
	}
}

// Put records payload under key. The payload is serialized to JSON and its
// token cost estimated from the serialized length. If usage then exceeds the
// budget the store prunes. An entry larger than the whole budget is rejected
// with a *StoreOverflowError.
func (s *Store) Put(key string, payload any, opts ...PutOption) (*models.ContextEntry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", key, err)
	}

	entry := &models.ContextEntry{
		Key:        key,
		Payload:    raw,
		Importance: s.cfg.DefaultImportance,
		Tokens:     EstimateTokens(raw, s.cfg.CharsPerToken),
	}
	for _, opt := range opts {
		opt(entry)
	}

	if entry.Tokens > s.cfg.MaxTokens {
		s.logger.Error("entry exceeds store budget",
			zap.String("key", key),
			zap.Int("tokens", entry.Tokens),
			zap.Int("max_tokens", s.cfg.MaxTokens))
		return nil, &StoreOverflowError{Key: key, Tokens: entry.Tokens, MaxTokens: s.cfg.MaxTokens}
	}

	s.mu.Lock()
	now := s.now()
	s.seq++
	entry.CreatedAt = now
	entry.ID = fmt.Sprintf("%s-%d-%d", key, now.UnixNano(), s.seq)
	s.entries = append(s.entries, entry)
	s.used += entry.Tokens

	var result PruneResult
	pruned := false
	if s.used > s.cfg.MaxTokens {
		result = s.pruneLocked(now)
		pruned = true
	}
	stats := s.statsLocked()
	out := entry.Clone()
	s.mu.Unlock()

	s.logger.Debug("context entry stored",
		zap.String("key", key),
		zap.String("unit", string(entry.UnitType)),
		zap.Int("tokens", entry.Tokens),
		zap.Int("importance", entry.Importance),
		zap.Int("total_tokens", stats.TotalTokens))

	if pruned {
		s.observePrune(result)
	}
	s.observeUsage(stats)
	return out, nil
}

// Prune evicts the lowest-scored entries until usage is at or below the
// prune target. Evicted entries at or above the archive threshold are
// archived first. It does nothing when usage is already at or below target.
func (s *Store) Prune() PruneResult {
	s.mu.Lock()
	result := s.pruneLocked(s.now())
	stats := s.statsLocked()
	s.mu.Unlock()

	if result.Evicted > 0 {
		s.observePrune(result)
	}
	s.observeUsage(stats)
	return result
}

func (s *Store) pruneLocked(now time.Time) PruneResult {
	var result PruneResult
	target := s.cfg.targetTokens()
	if s.used <= target {
		return result
	}

	type scored struct {
		pos   int
		score float64
	}
	ranked := make([]scored, len(s.entries))
	for i, e := range s.entries {
		ranked[i] = scored{pos: i, score: s.cfg.Score(e, now)}
	}
	// Lowest score first; equal scores evict the older entry first.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score < ranked[j].score
	})

	evict := make(map[int]bool)
	for _, r := range ranked {
		if s.used <= target {
			break
		}
		e := s.entries[r.pos]
		if e.Importance >= s.cfg.ArchiveThreshold {
			s.archive.Add(e, now)
			result.Archived++
		}
		evict[r.pos] = true
		s.used -= e.Tokens
		result.Evicted++
		result.TokensFreed += e.Tokens
		result.EvictedKeys = append(result.EvictedKeys, e.Key)
	}

	kept := s.entries[:0]
	for i, e := range s.entries {
		if !evict[i] {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.entries); i++ {
		s.entries[i] = nil
	}
	s.entries = kept

	s.logger.Info("context store pruned",
		zap.Int("evicted", result.Evicted),
		zap.Int("archived", result.Archived),
		zap.Int("tokens_freed", result.TokensFreed),
		zap.Int("total_tokens", s.used),
		zap.Int("target_tokens", target))
	return result
}

// GetForUnit returns the entries relevant to a unit type: active entries the
// unit owns, active entries at or above UnitImportance, active entries
// younger than FreshWindow, and the archive retrieval for the unit.
func (s *Store) GetForUnit(unitType models.UnitType) []*models.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[string]bool)
	var out []*models.ContextEntry
	for _, e := range s.entries {
		if e.UnitType == unitType ||
			e.Importance >= s.cfg.UnitImportance ||
			now.Sub(e.CreatedAt) < s.cfg.FreshWindow {
			seen[e.ID] = true
			out = append(out, e.Clone())
		}
	}

	for _, e := range s.archive.Retrieve(unitType, s.cfg.ArchiveImportance) {
		if !seen[e.ID] {
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}

// RetrieveFromArchive returns archived entries owned by unitType or at or
// above ArchiveImportance.
func (s *Store) RetrieveFromArchive(unitType models.UnitType) []*models.ContextEntry {
	return s.archive.Retrieve(unitType, s.cfg.ArchiveImportance)
}

// Latest returns the most recent active entry for key, or nil.
func (s *Store) Latest(key string) *models.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Key == key {
			return s.entries[i].Clone()
		}
	}
	return nil
}

// SearchByPattern returns active and archived entries whose key matches the
// regular expression pattern. Active entries come first.
func (s *Store) SearchByPattern(pattern string) ([]*models.ContextEntry, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	s.mu.Lock()
	var out []*models.ContextEntry
	for _, e := range s.entries {
		if re.MatchString(e.Key) {
			out = append(out, e.Clone())
		}
	}
	s.mu.Unlock()

	return append(out, s.archive.Search(re)...), nil
}

// Clear removes every active entry. Entries at or above the archive
// threshold are archived first.
func (s *Store) Clear() {
	s.mu.Lock()
	now := s.now()
	archived := 0
	for _, e := range s.entries {
		if e.Importance >= s.cfg.ArchiveThreshold {
			s.archive.Add(e, now)
			archived++
		}
	}
	cleared := len(s.entries)
	s.entries = nil
	s.used = 0
	stats := s.statsLocked()
	s.mu.Unlock()

	s.logger.Info("context store cleared", zap.Int("cleared", cleared), zap.Int("archived", archived))
	s.observeUsage(stats)
}

// Entries returns copies of the active entries in insertion order.
func (s *Store) Entries() []*models.ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.ContextEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

// Archive returns the archive backing this store.
func (s *Store) Archive() *Archive {
	return s.archive
}

// Config returns the store configuration.
func (s *Store) Config() Config {
	return s.cfg
}

// Stats returns current occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Store) statsLocked() Stats {
	return Stats{
		ActiveEntries:  len(s.entries),
		ArchiveEntries: s.archive.Len(),
		TotalTokens:    s.used,
		MaxTokens:      s.cfg.MaxTokens,
		Utilization:    float64(s.used) / float64(s.cfg.MaxTokens) * 100,
	}
}

func (s *Store) observePrune(r PruneResult) {
	if s.observer != nil {
		s.observer.ObservePrune(r)
	}
}

func (s *Store) observeUsage(st Stats) {
	if s.observer != nil {
		s.observer.ObserveUsage(st)
	}
}
