package domain

// RunTree is a run together with its fully resolved descendant runs.
type RunTree struct {
	Run
	Children []*RunTree `json:"children"`
}

// TraceNode is a node in a trace visualization graph.
type TraceNode struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Type   string     `json:"type"`
	Status NodeStatus `json:"status"`
}

// TraceEdge is a directed edge in a trace visualization graph.
type TraceEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TraceGraph is a read-side projection of a run's steps suitable for rendering.
type TraceGraph struct {
	RunID string      `json:"run_id"`
	Nodes []TraceNode `json:"nodes"`
	Edges []TraceEdge `json:"edges"`
}

// TraceStats aggregates run counts and totals. The store-backed and in-memory
// computations produce the same shape.
type TraceStats struct {
	TotalRuns     int            `json:"total_runs"`
	ActiveRuns    int            `json:"active_runs"`
	AvgDurationMs float64        `json:"avg_duration_ms"`
	TotalTokens   TokenUsage     `json:"total_tokens"`
	RunsByAgent   map[string]int `json:"runs_by_agent"`
	RunsByStatus  map[string]int `json:"runs_by_status"`
}
