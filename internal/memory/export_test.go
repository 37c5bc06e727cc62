package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ShayCichocki/forge/pkg/models"
)

func TestExportImport_RoundTripStats(t *testing.T) {
	src, clock := newTestStore(t, 100)
	for i := 0; i < 14; i++ {
		mustPut(t, src, fmt.Sprintf("k%d", i), tenTokens,
			WithImportance(6+i%5), WithUnitType(models.StandardUnits[i%len(models.StandardUnits)]))
		clock.Advance(time.Minute)
	}
	if src.Stats().ArchiveEntries == 0 {
		t.Fatal("expected the workload to archive something")
	}

	blob, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, _ := newTestStore(t, 100)
	if err := dst.Import(blob); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if got, want := dst.Stats(), src.Stats(); got != want {
		t.Errorf("stats after import:\nwant %+v\ngot  %+v", want, got)
	}

	srcArchive := src.Archive().Entries()
	dstArchive := dst.Archive().Entries()
	if len(dstArchive) != len(srcArchive) {
		t.Fatalf("expected %d archived entries, got %d", len(srcArchive), len(dstArchive))
	}
	for i := range srcArchive {
		s, d := srcArchive[i], dstArchive[i]
		if s.ID != d.ID || s.UnitType != d.UnitType || s.Importance != d.Importance {
			t.Errorf("archive entry %d differs: want %+v, got %+v", i, s, d)
		}
		if d.ArchivedAt == nil {
			t.Errorf("archive entry %d lost its archived timestamp", i)
		}
	}
}

func TestImport_RecomputesTokens(t *testing.T) {
	src, _ := newTestStore(t, 100)
	mustPut(t, src, "a", tenTokens)

	blob, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(blob, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	raw["tokens"] = 9999
	entries := raw["entries"].([]any)
	entries[0].(map[string]any)["tokens"] = 1
	tampered, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	dst, _ := newTestStore(t, 100)
	if err := dst.Import(tampered); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if got := dst.Stats().TotalTokens; got != 10 {
		t.Errorf("expected total recomputed to 10, got %d", got)
	}
	if got := dst.Entries()[0].Tokens; got != 10 {
		t.Errorf("expected entry tokens recomputed to 10, got %d", got)
	}
}

func TestImport_PrunesIntoSmallerBudget(t *testing.T) {
	src, _ := newTestStore(t, 100)
	for i := 0; i < 8; i++ {
		mustPut(t, src, fmt.Sprintf("k%d", i), tenTokens)
	}
	blob, err := src.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	dst, _ := newTestStore(t, 50)
	if err := dst.Import(blob); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if got := dst.Stats().TotalTokens; got > 35 {
		t.Errorf("expected at most 35 tokens after import, got %d", got)
	}
}

func TestImport_RejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t, 100)

	if err := s.Import([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}

	err := s.Import([]byte(`{"version": 7, "entries": []}`))
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}
