package tracer

import (
	"sort"
	"time"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// Cleanup evicts in-memory run records in two passes: first every inactive
// run older than maxAge, then the oldest inactive runs until at most maxRuns
// remain. Active runs are never evicted. Eviction only removes the in-memory
// copy; durable rows are untouched. Returns the number of runs removed.
func (t *Tracer) Cleanup(maxRuns int, maxAge time.Duration) int {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	if maxAge > 0 {
		for id, run := range t.runs {
			if _, isActive := t.active[id]; isActive {
				continue
			}
			if now.Sub(run.StartTime) > maxAge {
				t.evictLocked(id, run)
				removed++
			}
		}
	}

	if maxRuns > 0 && len(t.runs) > maxRuns {
		candidates := make([]*domain.Run, 0, len(t.runs))
		for id, run := range t.runs {
			if _, isActive := t.active[id]; isActive {
				continue
			}
			candidates = append(candidates, run)
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].StartTime.Before(candidates[j].StartTime)
		})
		for _, run := range candidates {
			if len(t.runs) <= maxRuns {
				break
			}
			t.evictLocked(run.ID, run)
			removed++
		}
	}
	return removed
}

func (t *Tracer) evictLocked(id string, run *domain.Run) {
	delete(t.runs, id)
	for i := range run.Steps {
		delete(t.stepIndex, run.Steps[i].ID)
		delete(t.stepTimers, run.Steps[i].ID)
	}
}
