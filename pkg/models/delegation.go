package models

import (
	"fmt"
	"sync"
	"time"
)

// TraversalMode selects how the Delegation Engine (C8) expands a
// children_spec tree.
type TraversalMode string

const (
	TraversalBFS      TraversalMode = "breadth_first"
	TraversalDFS      TraversalMode = "depth_first"
	TraversalAdaptive TraversalMode = "adaptive"
)

// DelegationStopReason enumerates why a delegation run terminated.
// Precedence among simultaneously-true reasons is the order in §4.8:
// DEPTH_LIMIT, BREADTH_LIMIT, BUDGET_EXHAUSTED, TIMEOUT, STAGNATION,
// CONVERGED, COMPLETED, ERROR.
type DelegationStopReason string

const (
	StopDepthLimit      DelegationStopReason = "depth_limit"
	StopBreadthLimit    DelegationStopReason = "breadth_limit"
	StopBudgetExhausted DelegationStopReason = "budget"
	StopTimeout         DelegationStopReason = "timeout"
	StopStagnation      DelegationStopReason = "stagnation"
	StopConverged       DelegationStopReason = "converged"
	StopCompleted       DelegationStopReason = "completed"
	StopError           DelegationStopReason = "error"
)

// DelegationBudget bounds a delegation run. Every field must be >= 1 (wall
// time > 0); the constructor validates this per §4.8 "Invariants enforced
// by constructor validation".
type DelegationBudget struct {
	MaxDepth               int
	MaxBreadth             int
	MaxTotalAgents         int
	MaxWallTimeSeconds     float64
	MaxIterations          int
	StagnationThreshold    int
}

// DefaultDelegationBudget mirrors the original implementation's defaults
// (dawn_kestrel.delegation.types.DelegationBudget).
func DefaultDelegationBudget() DelegationBudget {
	return DelegationBudget{
		MaxDepth:            3,
		MaxBreadth:          5,
		MaxTotalAgents:      20,
		MaxWallTimeSeconds:  300.0,
		MaxIterations:       10,
		StagnationThreshold: 3,
	}
}

// Validate enforces the constructor invariants for DelegationBudget.
func (b DelegationBudget) Validate() error {
	if b.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be > 0, got %d", b.MaxDepth)
	}
	if b.MaxBreadth <= 0 {
		return fmt.Errorf("max_breadth must be > 0, got %d", b.MaxBreadth)
	}
	if b.MaxTotalAgents <= 0 {
		return fmt.Errorf("max_total_agents must be > 0, got %d", b.MaxTotalAgents)
	}
	if b.MaxWallTimeSeconds <= 0 {
		return fmt.Errorf("max_wall_time_seconds must be > 0, got %v", b.MaxWallTimeSeconds)
	}
	if b.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be > 0, got %d", b.MaxIterations)
	}
	if b.StagnationThreshold <= 0 {
		return fmt.Errorf("stagnation_threshold must be > 0, got %d", b.StagnationThreshold)
	}
	return nil
}

// DelegationContext is the per-root bookkeeping record threaded through one
// delegate() call (§3). It is owned by the call that created it and
// discarded on return; internal counters are mutex-protected since BFS/
// ADAPTIVE traversal updates them from concurrently-running children.
type DelegationContext struct {
	RootTaskID         string
	CurrentDepth       int
	TotalAgentsSpawned int
	ActiveAgents       int
	CompletedAgents    int
	Results            []*AgentResult
	Errors             []error
	StartTime          time.Time
	IterationCount     int
	NoveltySignatures  []string
	StagnationCount    int

	mu sync.Mutex
}

// NewDelegationContext starts a context clocked from now.
func NewDelegationContext(rootTaskID string, now time.Time) *DelegationContext {
	return &DelegationContext{RootTaskID: rootTaskID, StartTime: now}
}

// ElapsedSeconds returns the wall time since StartTime as of `now`.
func (c *DelegationContext) ElapsedSeconds(now time.Time) float64 {
	return now.Sub(c.StartTime).Seconds()
}

// RecordSpawn increments the spawn/active counters for one new child agent.
func (c *DelegationContext) RecordSpawn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TotalAgentsSpawned++
	c.ActiveAgents++
}

// RecordCompletion moves one agent from active to completed, appending its
// result or error to the accumulated lists.
func (c *DelegationContext) RecordCompletion(result *AgentResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveAgents--
	c.CompletedAgents++
	if err != nil {
		c.Errors = append(c.Errors, err)
		return
	}
	if result != nil {
		c.Results = append(c.Results, result)
	}
}

// RecordNovelty appends a novelty signature and resets StagnationCount, or
// increments StagnationCount when the signature has already been seen.
// Returns true if the signature was novel.
func (c *DelegationContext) RecordNovelty(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.NoveltySignatures {
		if s == signature {
			c.StagnationCount++
			return false
		}
	}
	c.NoveltySignatures = append(c.NoveltySignatures, signature)
	c.StagnationCount = 0
	return true
}

// Snapshot copies the counters that DelegationResult reports, taking the
// lock briefly (§5 shared-resource policy: no awaits while held).
func (c *DelegationContext) Snapshot() (totalAgents, completedAgents, stagnation int, results []*AgentResult, errs []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	results = append([]*AgentResult(nil), c.Results...)
	errs = append([]error(nil), c.Errors...)
	return c.TotalAgentsSpawned, c.CompletedAgents, c.StagnationCount, results, errs
}

// DelegationResult is the outcome of one delegate() call (§4.8).
type DelegationResult struct {
	Success               bool
	StopReason            DelegationStopReason
	Results               []*AgentResult
	Errors                []error
	TotalAgents           int
	MaxDepthReached       int
	ElapsedSeconds        float64
	Iterations            int
	Converged             bool
	StagnationDetected    bool
	FinalNoveltySignature string
}

// DelegationConfig configures one delegate() call: traversal mode, budget,
// evidence keys used for the novelty projection, and optional hooks.
type DelegationConfig struct {
	Mode             TraversalMode
	Budget           DelegationBudget
	CheckConvergence bool
	EvidenceKeys     []string

	OnAgentSpawn       func(agentName string, depth int)
	OnAgentComplete    func(agentName string, result *AgentResult)
	OnConvergenceCheck func(results []*AgentResult) bool
}

// DefaultEvidenceKeys mirrors the original implementation's default
// novelty-projection keys.
func DefaultEvidenceKeys() []string { return []string{"result", "findings"} }

// ChildSpec describes one child delegation requested alongside a parent
// invocation's `children` tool argument (§4.8 "A thin Tool wrapper").
type ChildSpec struct {
	Agent    string
	Prompt   string
	Children []ChildSpec
}
