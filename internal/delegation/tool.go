package delegation

import (
	"encoding/json"
	"fmt"

	"github.com/psligti/dawn-kestrel/pkg/models"
)

// DelegateTool exposes the Delegation Engine to an agent as an ordinary
// tool call: arguments {agent, prompt, mode?, children?, budget?}. Each
// call builds a fresh DelegationConfig and runs it through Engine.Delegate,
// then maps the result to a ToolResult whose metadata carries
// {success, total_agents, converged, stop_reason, max_depth_reached,
// elapsed_seconds} per §4.8.
type DelegateTool struct {
	engine    *Engine
	sessionID string
}

// NewDelegateTool binds a DelegateTool to an engine and the session id
// every delegation it spawns should be recorded under.
func NewDelegateTool(engine *Engine, sessionID string) *DelegateTool {
	return &DelegateTool{engine: engine, sessionID: sessionID}
}

// delegateToolArgs is the JSON shape of one DelegateTool call.
type delegateToolArgs struct {
	Agent    string             `json:"agent"`
	Prompt   string             `json:"prompt"`
	Mode     models.TraversalMode `json:"mode,omitempty"`
	Children []models.ChildSpec `json:"children,omitempty"`
	Budget   *models.DelegationBudget `json:"budget,omitempty"`
}

func (t *DelegateTool) ID() string { return "delegate" }

func (t *DelegateTool) Description() string {
	return "Delegates a task to a specialist agent, optionally spawning a bounded tree of sub-delegations."
}

func (t *DelegateTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"agent": {"type": "string"},
			"prompt": {"type": "string"},
			"mode": {"type": "string", "enum": ["breadth_first", "depth_first", "adaptive"]},
			"children": {"type": "array"},
			"budget": {"type": "object"}
		},
		"required": ["agent", "prompt"]
	}`)
}

func (t *DelegateTool) Execute(ctx *models.ToolContext, args json.RawMessage) (models.ToolResult, error) {
	var parsed delegateToolArgs
	if err := json.Unmarshal(args, &parsed); err != nil {
		return models.ToolResult{}, fmt.Errorf("delegate: parse arguments: %w", err)
	}
	if parsed.Agent == "" || parsed.Prompt == "" {
		return models.ToolResult{}, fmt.Errorf("delegate: agent and prompt are required")
	}

	budget := models.DefaultDelegationBudget()
	if parsed.Budget != nil {
		budget = *parsed.Budget
	}
	mode := parsed.Mode
	if mode == "" {
		mode = models.TraversalBFS
	}

	cfg := models.DelegationConfig{
		Mode:         mode,
		Budget:       budget,
		EvidenceKeys: models.DefaultEvidenceKeys(),
	}

	result, err := t.engine.Delegate(ctx, parsed.Agent, parsed.Prompt, t.sessionID, parsed.Children, cfg)
	if err != nil {
		return models.ToolResult{}, fmt.Errorf("delegate: %w", err)
	}

	return models.ToolResult{
		Title:   fmt.Sprintf("delegate(%s)", parsed.Agent),
		Content: summarize(result),
		Metadata: map[string]any{
			"success":           result.Success,
			"total_agents":      result.TotalAgents,
			"converged":         result.Converged,
			"stop_reason":       result.StopReason,
			"max_depth_reached": result.MaxDepthReached,
			"elapsed_seconds":   result.ElapsedSeconds,
		},
		IsError: !result.Success,
	}, nil
}

func summarize(result *models.DelegationResult) string {
	if len(result.Results) == 0 {
		return fmt.Sprintf("delegation stopped (%s) with no results", result.StopReason)
	}
	return result.Results[len(result.Results)-1].Response
}
