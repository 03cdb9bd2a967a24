package observability

import (
	"maps"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
)

// stageTargetsP95MS are the latency goals per pipeline stage, in milliseconds.
var stageTargetsP95MS = map[string]float64{
	"classify":    800,
	"resolve":     1200,
	"retrieve":    600,
	"generate":    5000,
	"first_chunk": 1500,
	"turn_total":  6000,
}

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts samples in the window slower than TargetP95MS.
	OverTarget int `json:"over_target,omitempty"`
}

type TurnIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TurnStageSnapshot is the payload of /v1/perf/latency.
type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Indicators  []TurnIndicator  `json:"indicators,omitempty"`
}

// turnStageWindow keeps the last maxSamples durations per stage plus
// monotonically increasing indicator counts.
type turnStageWindow struct {
	mu         sync.RWMutex
	maxSamples int
	stages     map[string]*ring
	indicators map[string]int
}

type ring struct {
	values []float64
	next   int
	full   bool
	last   float64
}

func (r *ring) push(v float64) {
	r.values[r.next] = v
	r.last = v
	r.next = (r.next + 1) % len(r.values)
	if r.next == 0 {
		r.full = true
	}
}

// sorted returns a sorted copy of the retained samples.
func (r *ring) sorted() []float64 {
	n := r.next
	if r.full {
		n = len(r.values)
	}
	out := slices.Clone(r.values[:n])
	slices.Sort(out)
	return out
}

func newTurnStageWindow(maxSamples int) *turnStageWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &turnStageWindow{
		maxSamples: maxSamples,
		stages:     make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *turnStageWindow) Observe(stage string, ms float64) {
	if stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.stages[stage]
	if !ok {
		r = &ring{values: make([]float64, w.maxSamples)}
		w.stages[stage] = r
	}
	r.push(ms)
}

func (w *turnStageWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	if name = strings.TrimSpace(name); name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *turnStageWindow) Snapshot() TurnStageSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Stages:      make([]TurnStageStats, 0, len(w.stages)),
	}
	for _, stage := range slices.Sorted(maps.Keys(w.stages)) {
		samples := w.stages[stage].sorted()
		if len(samples) == 0 {
			continue
		}
		snap.Stages = append(snap.Stages, stageStats(stage, samples, w.stages[stage].last))
	}
	for _, name := range slices.Sorted(maps.Keys(w.indicators)) {
		if n := w.indicators[name]; n > 0 {
			snap.Indicators = append(snap.Indicators, TurnIndicator{Name: name, Count: n})
		}
	}
	return snap
}

func (w *turnStageWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.stages)
	clear(w.indicators)
}

func stageStats(stage string, sorted []float64, last float64) TurnStageStats {
	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	target := stageTargetsP95MS[stage]
	over := 0
	if target > 0 {
		// sorted ascending, so everything past the first slow sample is slow too
		idx, _ := slices.BinarySearch(sorted, math.Nextafter(target, math.Inf(1)))
		over = len(sorted) - idx
	}
	return TurnStageStats{
		Stage:       stage,
		Samples:     len(sorted),
		LastMS:      round2(last),
		AvgMS:       round2(sum / float64(len(sorted))),
		P50MS:       round2(quantile(sorted, 0.50)),
		P95MS:       round2(quantile(sorted, 0.95)),
		P99MS:       round2(quantile(sorted, 0.99)),
		TargetP95MS: target,
		OverTarget:  over,
	}
}

// quantile interpolates linearly between the closest ranks.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo, frac := math.Modf(pos)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[i]
	}
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
