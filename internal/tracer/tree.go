package tracer

import (
	"context"

	"github.com/aacamara/cscx-mvp6-sub017/internal/domain"
)

// GetRunTree reconstructs a run together with its full descendant-run tree,
// resolving children through the same memory-then-store path as GetRun. A
// child that cannot be resolved is omitted rather than failing the whole
// reconstruction.
func (t *Tracer) GetRunTree(ctx context.Context, runID string) *domain.RunTree {
	run := t.GetRun(ctx, runID)
	if run == nil {
		return nil
	}
	tree := &domain.RunTree{Run: *run, Children: []*domain.RunTree{}}
	for _, childID := range run.ChildRuns {
		child := t.GetRunTree(ctx, childID)
		if child == nil {
			continue
		}
		tree.Children = append(tree.Children, child)
	}
	return tree
}

// GetTraceVisualization projects a run's steps into a directed node/edge
// graph for rendering. Purely a read-side projection.
func (t *Tracer) GetTraceVisualization(ctx context.Context, runID string) *domain.TraceGraph {
	run := t.GetRun(ctx, runID)
	if run == nil {
		return nil
	}

	graph := &domain.TraceGraph{
		RunID: run.ID,
		Nodes: []domain.TraceNode{{
			ID:     "input",
			Label:  "User Input",
			Type:   "input",
			Status: domain.NodeStatusCompleted,
		}},
		Edges: []domain.TraceEdge{},
	}

	prev := "input"
	for i := range run.Steps {
		step := &run.Steps[i]
		status := domain.NodeStatusRunning
		if step.Output != "" {
			status = domain.NodeStatusCompleted
		} else if _, hasErr := step.Metadata["error"]; hasErr {
			status = domain.NodeStatusError
		}
		graph.Nodes = append(graph.Nodes, domain.TraceNode{
			ID:     step.ID,
			Label:  step.Name,
			Type:   string(step.Type),
			Status: status,
		})

		from := prev
		if step.ParentStepID != "" {
			from = step.ParentStepID
		}
		graph.Edges = append(graph.Edges, domain.TraceEdge{From: from, To: step.ID})
		prev = step.ID
	}

	if run.Status == domain.RunStatusCompleted && run.Output != "" {
		graph.Nodes = append(graph.Nodes, domain.TraceNode{
			ID:     "response",
			Label:  "Response",
			Type:   "response",
			Status: domain.NodeStatusCompleted,
		})
		graph.Edges = append(graph.Edges, domain.TraceEdge{From: prev, To: "response"})
	}
	return graph
}
