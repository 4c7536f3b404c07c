// Package tracer records the lifecycle of agent task executions. It owns the
// authoritative in-memory run table while runs are in flight, mirrors every
// mutation to a durable store on a best-effort basis, and broadcasts typed
// lifecycle events to live subscribers.
package tracer

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

const (
	persistQueueSize = 256
	persistTimeout   = 5 * time.Second
	statsSampleLimit = 1000
)

// Store is the durable record store consumed by the tracer. All writes are
// best-effort; a nil Store leaves the tracer fully functional in memory.
type Store interface {
	InsertRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	InsertStep(ctx context.Context, step *domain.Step) error
	UpdateStep(ctx context.Context, step *domain.Step) error
	SelectRunWithSteps(ctx context.Context, runID string) (*domain.Run, error)
	SelectRunsByUser(ctx context.Context, userID string, limit int) ([]*domain.Run, error)
	SelectRecentRuns(ctx context.Context, limit int) ([]*domain.Run, error)
}

// PolicyEngine evaluates tool-call steps. Returns one of the policy package's
// decision strings.
type PolicyEngine interface {
	Evaluate(ctx context.Context, input any) (string, error)
}

type persistOp struct {
	desc string
	fn   func(ctx context.Context) error
}

// Tracer is the process-wide execution trace registry.
type Tracer struct {
	mu         sync.RWMutex
	runs       map[string]*domain.Run
	active     map[string]struct{}
	stepTimers map[string]time.Time
	stepIndex  map[string]string // step id -> run id

	store       Store
	policy      PolicyEngine
	broadcaster *Broadcaster

	persistCh  chan persistOp
	persistWG  sync.WaitGroup
	workerDone chan struct{}
}

// New creates a tracer. store and policyEngine may be nil.
func New(store Store, policyEngine PolicyEngine) *Tracer {
	t := &Tracer{
		runs:        make(map[string]*domain.Run),
		active:      make(map[string]struct{}),
		stepTimers:  make(map[string]time.Time),
		stepIndex:   make(map[string]string),
		store:       store,
		policy:      policyEngine,
		broadcaster: NewBroadcaster(),
		persistCh:   make(chan persistOp, persistQueueSize),
		workerDone:  make(chan struct{}),
	}
	go t.persistLoop()
	return t
}

// Subscribe attaches a live event subscriber.
func (t *Tracer) Subscribe() (<-chan domain.TraceEvent, func()) {
	return t.broadcaster.Subscribe()
}

// SubscriberCount returns the number of attached event subscribers.
func (t *Tracer) SubscriberCount() int {
	return t.broadcaster.SubscriberCount()
}

// StartRun creates a run and registers it in the active set. The run is
// visible to concurrent readers before any asynchronous persistence completes.
func (t *Tracer) StartRun(ctx context.Context, params domain.StartRunParams) *domain.Run {
	run := &domain.Run{
		ID:              "run_" + uuid.New().String()[:8],
		AgentID:         params.AgentID,
		AgentName:       params.AgentName,
		AgentType:       params.AgentType,
		UserID:          params.UserID,
		SessionID:       params.SessionID,
		CustomerID:      params.CustomerID,
		CustomerContext: domain.MergeMetadata(nil, params.CustomerContext),
		StartTime:       time.Now(),
		Status:          domain.RunStatusRunning,
		Input:           params.Input,
		Steps:           []domain.Step{},
		ParentRunID:     params.ParentRunID,
		Metadata:        domain.MergeMetadata(nil, params.Metadata),
	}

	t.mu.Lock()
	t.runs[run.ID] = run
	t.active[run.ID] = struct{}{}
	if params.ParentRunID != "" {
		if _, ok := t.active[params.ParentRunID]; ok {
			if parent, ok := t.runs[params.ParentRunID]; ok {
				parent.ChildRuns = append(parent.ChildRuns, run.ID)
			}
		}
	}
	snapshot := run.Clone()
	t.publish(domain.EventTypeRunStart, run.ID, snapshot)
	t.mu.Unlock()

	t.persist("insert run "+run.ID, func(ctx context.Context) error {
		return t.store.InsertRun(ctx, snapshot)
	})
	return snapshot
}

// EndRun finalizes a run with a terminal status and removes it from the
// active set. Returns nil when the run is unknown, already terminal, or the
// requested status is not terminal.
func (t *Tracer) EndRun(ctx context.Context, runID string, params domain.EndRunParams) *domain.Run {
	if !params.Status.Terminal() {
		return nil
	}

	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok || run.Status.Terminal() {
		t.mu.Unlock()
		return nil
	}
	now := time.Now()
	run.EndTime = &now
	run.Status = params.Status
	run.Output = params.Output
	run.Error = params.Error
	delete(t.active, runID)
	snapshot := run.Clone()
	t.publish(domain.EventTypeRunEnd, runID, snapshot)
	t.mu.Unlock()

	t.persist("update run "+runID, func(ctx context.Context) error {
		return t.store.UpdateRun(ctx, snapshot)
	})
	return snapshot
}

// UpdateStatus applies a non-terminal status change and merges metadata into
// the run. Used chiefly to enter and leave waiting_approval. Terminal
// transitions go through EndRun; a terminal status here is ignored.
func (t *Tracer) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, metadata map[string]any) *domain.Run {
	if !status.Valid() || status.Terminal() {
		return nil
	}

	t.mu.Lock()
	run, ok := t.runs[runID]
	if !ok || run.Status.Terminal() {
		t.mu.Unlock()
		return nil
	}
	run.Status = status
	run.Metadata = domain.MergeMetadata(run.Metadata, metadata)
	snapshot := run.Clone()
	t.publish(domain.EventTypeStatusChange, runID, domain.StatusChange{
		Status:   status,
		Metadata: snapshot.Metadata,
	})
	t.mu.Unlock()

	t.persist("update run "+runID, func(ctx context.Context) error {
		return t.store.UpdateRun(ctx, snapshot)
	})
	return snapshot
}

// GetRun returns a run from memory, falling back to the durable store on a
// miss. Returns nil when the run is unknown to both.
func (t *Tracer) GetRun(ctx context.Context, runID string) *domain.Run {
	t.mu.RLock()
	run, ok := t.runs[runID]
	var snapshot *domain.Run
	if ok {
		snapshot = run.Clone()
	}
	t.mu.RUnlock()
	if ok {
		return snapshot
	}

	if t.store == nil {
		return nil
	}
	stored, err := t.store.SelectRunWithSteps(ctx, runID)
	if err != nil {
		log.Printf("ERROR: failed to read run %s from store: %v", runID, err)
		return nil
	}
	return stored
}

// GetActiveRuns returns all runs currently in a non-terminal status, newest
// first. Memory only.
func (t *Tracer) GetActiveRuns() []*domain.Run {
	t.mu.RLock()
	runs := make([]*domain.Run, 0, len(t.active))
	for id := range t.active {
		if run, ok := t.runs[id]; ok {
			runs = append(runs, run.Clone())
		}
	}
	t.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })
	return runs
}

// GetUserRuns returns a user's runs, newest first. Prefers the durable store;
// falls back to an in-memory scan when the store is unavailable.
func (t *Tracer) GetUserRuns(ctx context.Context, userID string, limit int) []*domain.Run {
	if t.store != nil {
		runs, err := t.store.SelectRunsByUser(ctx, userID, limit)
		if err == nil {
			return runs
		}
		log.Printf("WARN: user run query fell back to memory: %v", err)
	}

	t.mu.RLock()
	var runs []*domain.Run
	for _, run := range t.runs {
		if run.UserID == userID {
			runs = append(runs, run.Clone())
		}
	}
	t.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartTime.After(runs[j].StartTime) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// publish emits a trace event. Called with the run table lock held so that
// per-run delivery order matches mutation order.
func (t *Tracer) publish(eventType domain.EventType, runID string, data any) {
	t.broadcaster.Publish(domain.TraceEvent{
		Type:      eventType,
		RunID:     runID,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// persist enqueues a fire-and-forget durable write. The caller is never
// blocked: when the queue is full the write is dropped with a warning.
func (t *Tracer) persist(desc string, fn func(ctx context.Context) error) {
	if t.store == nil {
		return
	}
	t.persistWG.Add(1)
	select {
	case t.persistCh <- persistOp{desc: desc, fn: fn}:
	default:
		t.persistWG.Done()
		log.Printf("WARN: persistence queue full, dropping %s", desc)
	}
}

// persistLoop executes durable writes one at a time, preserving mutation
// order. Failures are logged and dropped; in-memory state is never rolled back.
func (t *Tracer) persistLoop() {
	defer close(t.workerDone)
	for op := range t.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := op.fn(ctx); err != nil {
			log.Printf("ERROR: failed to %s: %v", op.desc, err)
		}
		cancel()
		t.persistWG.Done()
	}
}

// Flush blocks until all queued durable writes have been attempted.
func (t *Tracer) Flush() {
	t.persistWG.Wait()
}

// Close flushes pending writes and stops the persistence worker.
func (t *Tracer) Close() {
	t.Flush()
	close(t.persistCh)
	<-t.workerDone
}
