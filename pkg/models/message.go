package models

import (
	"encoding/json"
	"strconv"
	"time"
)

func itoa(n int) string { return strconv.Itoa(n) }

// ChannelType represents a messaging platform.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelDiscord  ChannelType = "discord"
	ChannelSlack    ChannelType = "slack"
)

// Direction indicates if a message is inbound or outbound.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn in a Session: a flat text body plus an ordered
// sequence of Parts (§3). Content is the spec's "text" field — renaming it
// would cascade through every caller that already reads/writes Content, so
// the field keeps its teacher-given name while satisfying the spec's
// semantics unchanged.
type Message struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Channel     ChannelType    `json:"channel,omitempty"`
	ChannelID   string         `json:"channel_id,omitempty"`
	Direction   Direction      `json:"direction,omitempty"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Parts       []Part         `json:"-"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Text returns the message's flat text body (spec §3 Message.text).
func (m *Message) Text() string { return m.Content }

// Attachment represents a file or media attachment.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"` // image, audio, video, document
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// ToolResult represents the output of a tool execution. It reconciles the
// spec's {title, output, metadata} Tool contract (§6) with the teacher's
// existing {content, is_error} shape: Content *is* the spec's "output"
// field (no separate Output field to avoid two sources of truth across the
// ~15 call sites that already read/write Content).
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Title      string         `json:"title,omitempty"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
}

// Session is the persistent conversation scope owning Messages and Parts
// (§3). ProjectID, Directory and Title must be non-empty before any agent
// may run against the session (enforced by Agent Runtime step 2).
// AgentID/Channel/ChannelID/Key are retained from the teacher's chat-bot
// shape for collaborators that still key sessions by inbound channel; the
// core itself only reads ID/ProjectID/Directory/Title/MessageCounter.
type Session struct {
	ID             string         `json:"id"`
	Slug           string         `json:"slug,omitempty"`
	ProjectID      string         `json:"project_id"`
	Directory      string         `json:"directory"`
	Title          string         `json:"title"`
	MessageCounter int            `json:"message_counter"`
	AgentID        string         `json:"agent_id,omitempty"`
	Channel        ChannelType    `json:"channel,omitempty"`
	ChannelID      string         `json:"channel_id,omitempty"`
	Key            string         `json:"key,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate enforces the §3 Session invariant: project_id, directory, and
// title must be non-empty before any agent may run against it. Returns the
// name of the first empty field, or "" if the session is valid.
func (s *Session) Validate() string {
	switch {
	case s.ProjectID == "":
		return "project_id"
	case s.Directory == "":
		return "directory"
	case s.Title == "":
		return "title"
	default:
		return ""
	}
}

// NextMessageID returns the authoritative id for the session's next
// message and the counter value to persist (§4.5 step 1/7: "id =
// session.id + '_' + counter").
func (s *Session) NextMessageID() (id string, counter int) {
	s.MessageCounter++
	return s.ID + "_" + itoa(s.MessageCounter), s.MessageCounter
}

