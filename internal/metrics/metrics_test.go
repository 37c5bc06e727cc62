package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/forge/internal/memory"
	"github.com/ShayCichocki/forge/internal/notify"
	"github.com/ShayCichocki/forge/pkg/models"
)

func TestCollector_TaskEvents(t *testing.T) {
	c := New()

	c.Notify(notify.Event{Type: notify.EventPhaseChanged, Phase: "executing"})
	c.Notify(notify.Event{Type: notify.EventTaskStarted, TaskID: "data", UnitType: models.UnitData})
	c.Notify(notify.Event{Type: notify.EventTaskStarted, TaskID: "auth", UnitType: models.UnitAuth})
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inflight))

	c.Notify(notify.Event{Type: notify.EventTaskCompleted, TaskID: "data", UnitType: models.UnitData, Duration: 2 * time.Second})
	c.Notify(notify.Event{Type: notify.EventTaskFailed, TaskID: "auth", UnitType: models.UnitAuth, Error: errors.New("boom")})
	c.Notify(notify.Event{Type: notify.EventTaskFailed, TaskID: "core", UnitType: models.UnitCore, Blocked: true})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.phases.WithLabelValues("executing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.phase.WithLabelValues("executing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.started.WithLabelValues("data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("data", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("auth", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("core", "blocked")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.taskDuration))
}

func TestCollector_PhaseGaugeTracksCurrent(t *testing.T) {
	c := New()
	c.Notify(notify.Event{Type: notify.EventPhaseChanged, Phase: "planning"})
	c.Notify(notify.Event{Type: notify.EventPhaseChanged, Phase: "executing"})

	assert.Equal(t, 1, testutil.CollectAndCount(c.phase))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.phase.WithLabelValues("executing")))
}

func TestCollector_MemoryObserver(t *testing.T) {
	c := New()

	cfg := memory.DefaultConfig()
	cfg.MaxTokens = 50
	store, err := memory.NewStore(cfg, memory.WithObserver(c))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		_, err := store.Put("k", "0123456789012345678901234567", memory.WithImportance(i))
		require.NoError(t, err)
	}

	stats := store.Stats()
	assert.Equal(t, float64(stats.TotalTokens), testutil.ToFloat64(c.memTokens))
	assert.Equal(t, 50.0, testutil.ToFloat64(c.memMaxTokens))
	assert.Equal(t, float64(stats.ActiveEntries), testutil.ToFloat64(c.memEntries.WithLabelValues("active")))
	assert.Greater(t, testutil.ToFloat64(c.evictions), 0.0)
	assert.Greater(t, testutil.ToFloat64(c.tokensFreed), 0.0)
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.Notify(notify.Event{Type: notify.EventTaskStarted, UnitType: models.UnitData})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `forge_tasks_started_total{unit="data"} 1`)
}

func TestCollectors_AreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Notify(notify.Event{Type: notify.EventPhaseChanged, Phase: "planning"})

	assert.Equal(t, 1.0, testutil.ToFloat64(a.phases.WithLabelValues("planning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.phases.WithLabelValues("planning")))
}

func TestServe_StopsOnCancel(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, "127.0.0.1:0", nil) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
