package models

import (
	"context"
	"encoding/json"
	"time"
)

// AgentMode distinguishes a top-level agent from one only reachable via
// delegation (C8).
type AgentMode string

const (
	AgentModePrimary  AgentMode = "primary"
	AgentModeSubagent AgentMode = "subagent"
)

// PermissionAction is the outcome a PermissionRule assigns to a matching
// tool id.
type PermissionAction string

const (
	PermissionAllow PermissionAction = "allow"
	PermissionDeny  PermissionAction = "deny"
	PermissionAsk   PermissionAction = "ask"
)

// PermissionRule is one entry of an Agent's ordered permission list. The
// Tool Registry & Permission Filter (C2) evaluates rules in order and stops
// at the first match.
type PermissionRule struct {
	Pattern string           `json:"pattern"`
	Action  PermissionAction `json:"action"`
}

// ModelHint names a provider and model id an agent prefers, optionally
// carried as a raw options map when the source only supplies a dict.
type ModelHint struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// AgentDescriptor is the data model's "Agent" type (named Descriptor in Go
// to avoid colliding with the AgentRuntime/AgentTask/AgentResult family).
type AgentDescriptor struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Mode        AgentMode        `json:"mode"`
	Permission  []PermissionRule `json:"permission"`
	Prompt      string           `json:"prompt,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Model       *ModelHint       `json:"model,omitempty"`
	Options     map[string]any   `json:"options,omitempty"`
}

// ToolContext carries the identifiers and cancellation signal a Tool
// implementation needs, per §5 "every Tool execution receives a
// ToolContext.abort signal".
type ToolContext struct {
	context.Context
	SessionID string
	MessageID string
	CallID    string
	Agent     string
	Model     string

	abort chan struct{}
}

// NewToolContext creates a ToolContext bound to the given identifiers. The
// returned signal is shared with the owning Tool Execution Manager so that
// Cancel (or the manager's cleanup()) can be observed cooperatively.
func NewToolContext(ctx context.Context, sessionID, messageID, callID, agent, model string) *ToolContext {
	return &ToolContext{
		Context:   ctx,
		SessionID: sessionID,
		MessageID: messageID,
		CallID:    callID,
		Agent:     agent,
		Model:     model,
		abort:     make(chan struct{}),
	}
}

// Cancel sets the cooperative cancellation signal. Idempotent.
func (c *ToolContext) Cancel() {
	select {
	case <-c.abort:
	default:
		close(c.abort)
	}
}

// Aborted reports whether Cancel has been called.
func (c *ToolContext) Aborted() bool {
	select {
	case <-c.abort:
		return true
	default:
		return false
	}
}

// AbortChan exposes the raw signal channel for select statements in tools
// that poll at natural suspension points.
func (c *ToolContext) AbortChan() <-chan struct{} { return c.abort }

// ToolDescriptor is the Tool contract from §6: id, description, a JSON
// Schema for parameters, and an async execute.
type ToolDescriptor interface {
	ID() string
	Description() string
	Parameters() json.RawMessage
	Execute(ctx *ToolContext, args json.RawMessage) (ToolResult, error)
}

// TaskStatus enumerates AgentTask's monotonic lifecycle.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// IsActive reports whether the task is still pending or running.
func (s TaskStatus) IsActive() bool {
	return s == TaskPending || s == TaskRunning
}

// IsTerminal reports whether the task has reached a final state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// AgentTask is a tracked unit of agent execution, owned by the Orchestrator
// table (C7).
type AgentTask struct {
	TaskID      string         `json:"task_id"`
	AgentName   string         `json:"agent_name"`
	Description string         `json:"description"`
	ToolIDs     []string       `json:"tool_ids,omitempty"`
	SkillNames  []string       `json:"skill_names,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Status      TaskStatus     `json:"status"`
	ResultID    string         `json:"result_id,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewAgentTask constructs a pending AgentTask with a fresh id.
func NewAgentTask(id, agentName, description string) *AgentTask {
	return &AgentTask{
		TaskID:      id,
		AgentName:   agentName,
		Description: description,
		Status:      TaskPending,
	}
}

// TokenUsage mirrors the provider-adapter usage payload.
type TokenUsage struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	Reasoning   int `json:"reasoning,omitempty"`
	CacheRead   int `json:"cache_read,omitempty"`
	CacheWrite  int `json:"cache_write,omitempty"`
}

// AgentResult is the return value of Agent Runtime's execute_agent (C6).
type AgentResult struct {
	AgentName  string         `json:"agent_name"`
	Response   string         `json:"response"`
	Parts      []Part         `json:"parts,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ToolsUsed  []string       `json:"tools_used,omitempty"`
	TokensUsed *TokenUsage    `json:"tokens_used,omitempty"`
	Duration   time.Duration  `json:"duration"`
	Error      string         `json:"error,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
}

// TaskResult couples an AgentTask with its AgentResult (or error) plus
// execution timestamps, per §3.
type TaskResult struct {
	Task        *AgentTask   `json:"task"`
	Result      *AgentResult `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	StartedAt   time.Time    `json:"started_at,omitempty"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
}

// ModelInfo describes a model advertised by a provider adapter's
// get_models(), used by the Streaming LLM Session to resolve a configured
// model id before starting a stream.
type ModelInfo struct {
	ID        string `json:"id"`
	APIID     string `json:"api_id"`
	Provider  string `json:"provider"`
	ContextK  int    `json:"context_k,omitempty"`
	Reasoning bool   `json:"reasoning,omitempty"`
}

// StreamEventType enumerates the provider adapter's StreamEvent variants
// the Streaming LLM Session interprets (§4.5/§6). Adapters may emit
// provider-specific values too; the session treats anything outside this
// set as opaque and ignores it.
type StreamEventType string

const (
	StreamTextDelta StreamEventType = "text-delta"
	StreamToolCall  StreamEventType = "tool-call"
	StreamFinish    StreamEventType = "finish"
)

// StreamEvent is the provider adapter's wire shape: a tagged event plus an
// opaque payload and timestamp.
type StreamEvent struct {
	EventType StreamEventType `json:"event_type"`
	Data      StreamEventData `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamEventData carries the union of fields used by the three
// interpreted event types. Only the fields relevant to EventType are set.
type StreamEventData struct {
	// text-delta
	Delta string

	// tool-call
	Tool   string
	Input  json.RawMessage
	CallID string

	// finish
	Usage        *TokenUsage
	FinishReason string
}
