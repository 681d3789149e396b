package models

import "time"

// MemoryRecord is one entry of a session's long-term memory subtree (§6
// "memory/<session_id>/<memory_id>.json"). Embedding is optional: callers
// that index records for retrieval attach it, callers that only need
// recency-ordered recall may leave it nil.
type MemoryRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Created   time.Time      `json:"created"`
}

// ToolExecutionRecord is the durable log entry a Tool Execution Manager
// tracker persists per call (§6 "tool_execution/<session_id>/<execution_id>.json").
// Repeated calls to update_execution must converge: the stored State always
// reflects the most recent update (§8 round-trip property).
type ToolExecutionRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	MessageID string     `json:"message_id"`
	ToolID    string     `json:"tool_id"`
	State     ToolState  `json:"state"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	LoggedAt  time.Time  `json:"logged_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
