package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/forge/pkg/models"
)

// exportVersion is the current blob format.
const exportVersion = 1

// exportBlob is the serialized form of a store and its archive.
type exportBlob struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	MaxTokens  int                    `json:"max_tokens"`
	Tokens     int                    `json:"tokens"`
	Entries    []*models.ContextEntry `json:"entries"`
	Archive    []*models.ContextEntry `json:"archive"`
}

// Export serializes the active entries and the archive into an opaque blob.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	blob := exportBlob{
		Version:    exportVersion,
		ExportedAt: s.now().UTC(),
		MaxTokens:  s.cfg.MaxTokens,
		Tokens:     s.used,
		Entries:    make([]*models.ContextEntry, 0, len(s.entries)),
		Archive:    s.archive.Entries(),
	}
	for _, e := range s.entries {
		blob.Entries = append(blob.Entries, e.Clone())
	}
	s.mu.Unlock()

	data, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("marshal store export: %w", err)
	}
	return data, nil
}

// Import replaces the store contents with a blob produced by Export. Token
// estimates and the running total are recomputed from the payloads; the
// totals recorded in the blob are ignored. If the recomputed total exceeds
// this store's budget, a prune runs.
func (s *Store) Import(data []byte) error {
	var blob exportBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("unmarshal store export: %w", err)
	}
	if blob.Version != exportVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, blob.Version)
	}

	entries := make([]*models.ContextEntry, 0, len(blob.Entries))
	used := 0
	for _, e := range blob.Entries {
		if e == nil {
			continue
		}
		e.Tokens = EstimateTokens(e.Payload, s.cfg.CharsPerToken)
		e.ArchivedAt = nil
		used += e.Tokens
		entries = append(entries, e)
	}
	archived := make([]*models.ContextEntry, 0, len(blob.Archive))
	for _, e := range blob.Archive {
		if e == nil {
			continue
		}
		e.Tokens = EstimateTokens(e.Payload, s.cfg.CharsPerToken)
		archived = append(archived, e)
	}

	s.mu.Lock()
	s.entries = entries
	s.used = used
	s.archive.replace(archived)

	var result PruneResult
	if s.used > s.cfg.MaxTokens {
		result = s.pruneLocked(s.now())
	}
	stats := s.statsLocked()
	s.mu.Unlock()

	if blob.Tokens != used {
		s.logger.Warn("imported token total differs from recomputed total",
			zap.Int("recorded", blob.Tokens),
			zap.Int("recomputed", used))
	}
	s.logger.Info("context store imported",
		zap.Int("entries", stats.ActiveEntries),
		zap.Int("archive_entries", stats.ArchiveEntries),
		zap.Int("total_tokens", stats.TotalTokens))

	if result.Evicted > 0 {
		s.observePrune(result)
	}
	s.observeUsage(stats)
	return nil
}
