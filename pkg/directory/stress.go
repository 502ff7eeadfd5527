package directory

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// exposureWindow is the lookback window for difficult-case exposure.
const exposureWindow = 4 * time.Hour

// StressTicker periodically recalculates each agent's stress score and
// forces a break when it crosses the configured threshold. It is the
// single logical writer of stress scores; per-agent locks keep its
// updates from interleaving with assignment commits.
type StressTicker struct {
	dir        *Directory
	thresholds func() config.Thresholds // sampled each tick (hot reload)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStressTicker creates the background stress recalculation service.
func NewStressTicker(dir *Directory, thresholds func() config.Thresholds) *StressTicker {
	return &StressTicker{dir: dir, thresholds: thresholds}
}

// Start launches the recalculation loop.
func (t *StressTicker) Start(ctx context.Context) {
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	go t.run(ctx)

	slog.Info("Stress ticker started", "period", t.thresholds().StressTickPeriod)
}

// Stop signals the loop to exit and waits for it to finish.
func (t *StressTicker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	slog.Info("Stress ticker stopped")
}

func (t *StressTicker) run(ctx context.Context) {
	defer close(t.done)

	t.Tick()

	ticker := time.NewTicker(t.thresholds().StressTickPeriod.Duration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}

// Tick recalculates stress for every agent. Exposed for tests.
func (t *StressTicker) Tick() {
	th := t.thresholds()

	t.dir.mu.RLock()
	records := make([]*record, 0, len(t.dir.records))
	for _, r := range t.dir.records {
		records = append(records, r)
	}
	t.dir.mu.RUnlock()

	now := time.Now()
	for _, r := range records {
		r.mu.Lock()
		t.recalcLocked(r, now, th)
		r.mu.Unlock()
	}
}

// recalcLocked blends the stress components into [0,1] and applies the
// forced-break rule. Caller holds r.mu.
func (t *StressTicker) recalcLocked(r *record, now time.Time, th config.Thresholds) {
	// Prune the exposure window.
	kept := r.recentDifficult[:0]
	for _, ts := range r.recentDifficult {
		if now.Sub(ts) <= exposureWindow {
			kept = append(kept, ts)
		}
	}
	r.recentDifficult = kept

	consecutive := clamp01(float64(r.consecutiveDifficult) / 4.0)

	intensity := 0.0
	if r.identity.MaxConcurrentCases > 0 {
		intensity = clamp01(float64(r.workload) / float64(r.identity.MaxConcurrentCases))
	}

	exposure := clamp01(float64(len(r.recentDifficult)) / 5.0)

	duration := clamp01(now.Sub(r.shiftStart).Hours() / 8.0)

	breakRecency := clamp01(now.Sub(r.lastBreakAt).Hours() / 4.0)

	r.stress = clamp01(0.30*consecutive +
		0.25*intensity +
		0.15*exposure +
		0.15*duration +
		0.15*breakRecency)

	// Forced-break rule: above the threshold the agent goes on break for
	// at least the configured minimum.
	minBreak := time.Duration(th.MinBreakMinutes) * time.Minute
	switch {
	case r.stress > th.StressBreak && r.status != models.AgentBreak && r.status != models.AgentOffline:
		r.setStatusLocked(models.AgentBreak)
		r.forcedBreakUntil = now.Add(minBreak)
		slog.Warn("Stress threshold exceeded, forcing break",
			"agent_id", r.identity.AgentID,
			"stress", r.stress,
			"until", r.forcedBreakUntil)

	case !r.forcedBreakUntil.IsZero() && r.status == models.AgentBreak &&
		now.After(r.forcedBreakUntil) && r.stress <= th.StressBreak:
		r.forcedBreakUntil = time.Time{}
		if r.workload > 0 {
			r.setStatusLocked(models.AgentBusy)
		} else {
			r.setStatusLocked(models.AgentAvailable)
		}
		slog.Info("Forced break ended", "agent_id", r.identity.AgentID, "stress", r.stress)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
