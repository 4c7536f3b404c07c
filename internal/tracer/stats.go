package tracer

import (
	"context"
	"log"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// GetStats aggregates run counts, average completed-run duration, and token
// totals. The active count always comes from the in-memory active set; the
// rest is computed from a bounded sample of recent durable rows when the
// store is reachable, otherwise from the full in-memory table. Both paths
// produce the same shape.
func (t *Tracer) GetStats(ctx context.Context) domain.TraceStats {
	t.mu.RLock()
	activeCount := len(t.active)
	t.mu.RUnlock()

	if t.store != nil {
		runs, err := t.store.SelectRecentRuns(ctx, statsSampleLimit)
		if err == nil {
			return aggregateStats(runs, activeCount)
		}
		log.Printf("WARN: stats query fell back to memory: %v", err)
	}

	t.mu.RLock()
	runs := make([]*domain.Run, 0, len(t.runs))
	for _, run := range t.runs {
		runs = append(runs, run)
	}
	stats := aggregateStats(runs, activeCount)
	t.mu.RUnlock()
	return stats
}

func aggregateStats(runs []*domain.Run, activeCount int) domain.TraceStats {
	stats := domain.TraceStats{
		ActiveRuns:   activeCount,
		RunsByAgent:  make(map[string]int),
		RunsByStatus: make(map[string]int),
	}

	var durationTotal float64
	completed := 0
	for _, run := range runs {
		stats.TotalRuns++
		stats.TotalTokens.Input += run.TotalTokens.Input
		stats.TotalTokens.Output += run.TotalTokens.Output
		stats.RunsByAgent[run.AgentName]++
		stats.RunsByStatus[string(run.Status)]++
		if run.Status == domain.RunStatusCompleted && run.EndTime != nil {
			durationTotal += float64(run.EndTime.Sub(run.StartTime).Milliseconds())
			completed++
		}
	}
	if completed > 0 {
		stats.AvgDurationMs = durationTotal / float64(completed)
	}
	return stats
}
