package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psligti/dawn-kestrel/pkg/models"
)

// OrchestratorAdapter satisfies orchestrator.AgentRuntime by driving a
// *Runtime through its normal Process loop and folding the resulting
// ResponseChunk stream into a single synchronous models.AgentResult. This
// is the concrete binding the CLI and the Delegation Engine (C8) use in
// place of a stub runtime; Orchestrator and Engine only depend on the
// narrow interface, so neither package imports internal/agent directly.
type OrchestratorAdapter struct {
	runtime *Runtime
}

// NewOrchestratorAdapter wraps runtime for use as an orchestrator.AgentRuntime
// / delegation RetryAgentRuntime implementation.
func NewOrchestratorAdapter(runtime *Runtime) *OrchestratorAdapter {
	return &OrchestratorAdapter{runtime: runtime}
}

// ExecuteAgent drains one Process() run to completion, registering any tools
// the caller supplied for the duration of the call, and reports the final
// assistant text plus accumulated tool names as an AgentResult.
func (a *OrchestratorAdapter) ExecuteAgent(ctx context.Context, task *models.AgentTask, sessionID, userMessage string, tools []models.ToolDescriptor, session *models.Session) (*models.AgentResult, error) {
	if session == nil {
		session = &models.Session{ID: sessionID, AgentID: task.AgentName}
	}

	for _, t := range tools {
		wrapped := &toolDescriptorAdapter{desc: t, sessionID: sessionID, agent: task.AgentName}
		a.runtime.RegisterTool(wrapped)
		defer a.runtime.UnregisterTool(wrapped.Name())
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   userMessage,
		CreatedAt: time.Now(),
	}

	started := time.Now()
	chunks, err := a.runtime.Process(ctx, session, msg)
	if err != nil {
		return nil, fmt.Errorf("process session %s: %w", sessionID, err)
	}

	result := &models.AgentResult{AgentName: task.AgentName, TaskID: task.TaskID}
	toolsUsed := make(map[string]struct{})

	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, fmt.Errorf("agent %s: %w", task.AgentName, chunk.Error)
		}
		result.Response += chunk.Text
		if chunk.ToolEvent != nil && chunk.ToolEvent.ToolName != "" {
			toolsUsed[chunk.ToolEvent.ToolName] = struct{}{}
		}
	}

	for name := range toolsUsed {
		result.ToolsUsed = append(result.ToolsUsed, name)
	}
	result.Duration = time.Since(started)
	return result, nil
}

// Retry re-executes the root task of a delegation tree on an empty follow-up
// prompt, satisfying orchestrator.RetryAgentRuntime for the re-delegation
// Scheduler.
func (a *OrchestratorAdapter) Retry(ctx context.Context, rootTaskID string) (*models.AgentResult, error) {
	task := models.NewAgentTask(rootTaskID, "root", "scheduled re-delegation")
	return a.ExecuteAgent(ctx, task, rootTaskID, "continue", nil, nil)
}

// toolDescriptorAdapter exposes a models.ToolDescriptor (the Delegation
// Engine / orchestrator-facing shape) as a Runtime Tool, translating the
// ToolContext/ToolResult pairs each side expects.
type toolDescriptorAdapter struct {
	desc      models.ToolDescriptor
	sessionID string
	agent     string
}

func (t *toolDescriptorAdapter) Name() string            { return t.desc.ID() }
func (t *toolDescriptorAdapter) Description() string     { return t.desc.Description() }
func (t *toolDescriptorAdapter) Schema() json.RawMessage { return t.desc.Parameters() }

func (t *toolDescriptorAdapter) Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
	toolCtx := models.NewToolContext(ctx, t.sessionID, "", uuid.NewString(), t.agent, "")
	result, err := t.desc.Execute(toolCtx, params)
	if err != nil {
		return nil, err
	}
	return &ToolResult{Content: result.Content, IsError: result.IsError}, nil
}
