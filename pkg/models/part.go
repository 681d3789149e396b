package models

import (
	"encoding/json"
	"time"
)

// PartType discriminates the sealed Part union. Every variant carries this
// field under the json key "part_type" so a stored record can be decoded
// without prior knowledge of its shape.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeTool       PartType = "tool"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeSnapshot   PartType = "snapshot"
	PartTypePatch      PartType = "patch"
	PartTypeAgent      PartType = "agent"
	PartTypeCompaction PartType = "compaction"
	PartTypeFile       PartType = "file"
	PartTypeSubtask    PartType = "subtask"
	PartTypeRetry      PartType = "retry"
)

// ToolStatus enumerates the ToolState transition graph: pending -> running
// -> (completed | error); pending -> error on early cancellation. There are
// no backward transitions.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// ToolState is the lifecycle record carried by a ToolPart.
type ToolState struct {
	Status        ToolStatus      `json:"status"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        string          `json:"output,omitempty"`
	Title         string          `json:"title,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Error         string          `json:"error,omitempty"`
	TimeStart     *time.Time      `json:"time_start,omitempty"`
	TimeEnd       *time.Time      `json:"time_end,omitempty"`
	TimeCompacted *time.Time      `json:"time_compacted,omitempty"`
}

// CanTransitionTo reports whether moving from s to next is a legal edge in
// the ToolState transition graph.
func (s ToolStatus) CanTransitionTo(next ToolStatus) bool {
	switch s {
	case ToolStatusPending:
		return next == ToolStatusRunning || next == ToolStatusError
	case ToolStatusRunning:
		return next == ToolStatusCompleted || next == ToolStatusError
	default:
		return false
	}
}

// Part is the common envelope every Part variant embeds. Variant-specific
// fields live alongside it on the owning struct; PartBase only carries the
// fields every variant shares.
type PartBase struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	MessageID string    `json:"message_id"`
	Type      PartType  `json:"part_type"`
	TimeStart time.Time `json:"time_created,omitempty"`
	TimeEnd   time.Time `json:"time_updated,omitempty"`
}

// Part is implemented by every concrete part variant. PartType returns the
// discriminator written to the "part_type" field on serialization; Base
// returns the shared envelope for ordering/ownership bookkeeping.
type Part interface {
	PartType() PartType
	Base() PartBase
	// Text returns the streamable text contribution of this part, or ""
	// for part kinds that carry none. Used to reconstruct Message.Content
	// by concatenating TextPart contributions in part order (§8 Part
	// ordering invariant).
	Text() string
}

// TextPart carries streamed assistant or user text.
type TextPart struct {
	PartBase
	TextValue string `json:"text"`
}

func NewTextPart(id, sessionID, messageID string) *TextPart {
	return &TextPart{PartBase: PartBase{ID: id, SessionID: sessionID, MessageID: messageID, Type: PartTypeText}}
}

func (p *TextPart) PartType() PartType { return PartTypeText }
func (p *TextPart) Base() PartBase     { return p.PartBase }
func (p *TextPart) Text() string       { return p.TextValue }

// Append adds a streaming delta to the part's text and refreshes its
// time_updated marker. Mirrors the stream-consumption rule in §4.5: a
// text-delta event extends the previous TextPart rather than starting a
// new one.
func (p *TextPart) Append(delta string, at time.Time) {
	p.TextValue += delta
	p.TimeEnd = at
}

// ToolPart records one tool invocation within a message.
type ToolPart struct {
	PartBase
	Tool   string    `json:"tool"`
	CallID string    `json:"call_id"`
	State  ToolState `json:"state"`
	Source *Source   `json:"source,omitempty"`
}

// Source names the provider/model that produced a part, used as the soft
// delimiter AgentPart and as ToolPart.Source per §4.5 step "tool-call".
type Source struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

func (p *ToolPart) PartType() PartType { return PartTypeTool }
func (p *ToolPart) Base() PartBase     { return p.PartBase }
func (p *ToolPart) Text() string       { return "" }

// ReasoningPart carries provider "thinking"/reasoning text, kept distinct
// from TextPart so it never contributes to Message.text (§8 Part ordering).
type ReasoningPart struct {
	PartBase
	TextValue string `json:"text"`
}

func (p *ReasoningPart) PartType() PartType { return PartTypeReasoning }
func (p *ReasoningPart) Base() PartBase     { return p.PartBase }
func (p *ReasoningPart) Text() string       { return "" }

// SnapshotPart references a point-in-time working-directory snapshot taken
// around a turn (grounded on the teacher's git-snapshotting collaborator;
// the core only carries the reference, never performs the snapshot itself).
type SnapshotPart struct {
	PartBase
	SnapshotID string `json:"snapshot_id"`
}

func (p *SnapshotPart) PartType() PartType { return PartTypeSnapshot }
func (p *SnapshotPart) Base() PartBase     { return p.PartBase }
func (p *SnapshotPart) Text() string       { return "" }

// PatchPart carries a unified diff produced by a tool call (e.g. an edit
// tool), kept separate from ToolPart.State.Output so diff viewers can find
// patches without parsing tool output strings.
type PatchPart struct {
	PartBase
	Diff  string   `json:"diff"`
	Files []string `json:"files,omitempty"`
}

func (p *PatchPart) PartType() PartType { return PartTypePatch }
func (p *PatchPart) Base() PartBase     { return p.PartBase }
func (p *PatchPart) Text() string       { return "" }

// AgentPart is the soft delimiter appended between tool cycles, naming the
// provider that produced the preceding finish event (§4.5 step "finish").
type AgentPart struct {
	PartBase
	Provider string `json:"provider"`
}

func (p *AgentPart) PartType() PartType { return PartTypeAgent }
func (p *AgentPart) Base() PartBase     { return p.PartBase }
func (p *AgentPart) Text() string       { return "" }

// CompactionPart summarizes a folded message range, produced by the
// session-compaction collaborator (see SPEC_FULL.md Supplemented Features).
type CompactionPart struct {
	PartBase
	Summary     string `json:"summary"`
	FromMsgID   string `json:"from_message_id"`
	ToMsgID     string `json:"to_message_id"`
	TokensSaved int    `json:"tokens_saved,omitempty"`
}

func (p *CompactionPart) PartType() PartType { return PartTypeCompaction }
func (p *CompactionPart) Base() PartBase     { return p.PartBase }
func (p *CompactionPart) Text() string       { return "" }

// FilePart references an attached file (input or tool-produced artifact).
type FilePart struct {
	PartBase
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

func (p *FilePart) PartType() PartType { return PartTypeFile }
func (p *FilePart) Base() PartBase     { return p.PartBase }
func (p *FilePart) Text() string       { return "" }

// SubtaskPart links a message to a delegated child task (C8), letting a
// transcript viewer walk from a parent turn to the AgentTask it spawned.
type SubtaskPart struct {
	PartBase
	TaskID    string `json:"task_id"`
	AgentName string `json:"agent_name"`
}

func (p *SubtaskPart) PartType() PartType { return PartTypeSubtask }
func (p *SubtaskPart) Base() PartBase     { return p.PartBase }
func (p *SubtaskPart) Text() string       { return "" }

// RetryPart marks that a prior assistant turn was discarded and retried,
// carrying the reason so a transcript viewer can render the retry boundary.
type RetryPart struct {
	PartBase
	Reason        string `json:"reason"`
	OriginalMsgID string `json:"original_message_id,omitempty"`
}

func (p *RetryPart) PartType() PartType { return PartTypeRetry }
func (p *RetryPart) Base() PartBase     { return p.PartBase }
func (p *RetryPart) Text() string       { return "" }

// ConcatText implements the §8 "Part ordering" invariant: concatenating
// TextPart.Text() in part order must equal the owning Message's text.
func ConcatText(parts []Part) string {
	var out string
	for _, p := range parts {
		out += p.Text()
	}
	return out
}
