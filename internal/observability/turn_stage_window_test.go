package observability

import (
	"strings"
	"testing"
	"time"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe("retrieve", 200)
	w.Observe("retrieve", 400)
	w.Observe("retrieve", 600)
	w.ObserveIndicator("lexical_fallback")
	w.ObserveIndicator("lexical_fallback")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != "retrieve" {
		t.Fatalf("Stage = %q, want %q", s.Stage, "retrieve")
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 600 {
		t.Fatalf("LastMS = %.2f, want 600", s.LastMS)
	}
	if s.P50MS != 400 {
		t.Fatalf("P50MS = %.2f, want 400", s.P50MS)
	}
	if s.P95MS <= 400 || s.P95MS > 600 {
		t.Fatalf("P95MS = %.2f, want (400,600]", s.P95MS)
	}
	if s.TargetP95MS != 600 {
		t.Fatalf("TargetP95MS = %.2f, want 600", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != "lexical_fallback" || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0] = %+v", snap.Indicators[0])
	}
}

func TestTurnStageWindowCountsSlowSamples(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe("classify", 100)
	w.Observe("classify", 800)
	w.Observe("classify", 900)
	w.Observe("classify", 2000)
	w.Observe("custom", 99999)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if got := snap.Stages[0]; got.Stage != "classify" || got.OverTarget != 2 {
		t.Fatalf("classify stats = %+v, want 2 samples over target", got)
	}
	if got := snap.Stages[1]; got.TargetP95MS != 0 || got.OverTarget != 0 {
		t.Fatalf("untargeted stage = %+v", got)
	}

	w.Reset()
	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("Reset() left %d stages", len(snap.Stages))
	}
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe("classify", 1)
	w.Observe("classify", 2)
	w.Observe("classify", 3)
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 2.5 {
		t.Fatalf("stats = %+v, want 2 samples averaging 2.5", s)
	}
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.IncTurn("unknown")
	m.ObserveTurnStage("classify", time.Millisecond)
	m.IncEmbeddingCache(true)
	if snap := m.SnapshotTurnStages(); len(snap.Stages) != 0 {
		t.Fatalf("nil snapshot should be empty")
	}
}

func TestMetricsRecordTurnStages(t *testing.T) {
	m := NewMetrics("bravurbot_test_stage_" + strings.ReplaceAll(t.Name(), "/", "_"))
	m.ObserveTurnStage("classify", 120*time.Millisecond)
	m.ObserveFirstChunkLatency(300 * time.Millisecond)

	snap := m.SnapshotTurnStages()
	if len(snap.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[0].Stage != "classify" || snap.Stages[0].LastMS != 120 {
		t.Fatalf("Stages[0] = %+v", snap.Stages[0])
	}
}
