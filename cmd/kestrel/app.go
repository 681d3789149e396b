package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/psligti/dawn-kestrel/internal/agent"
	"github.com/psligti/dawn-kestrel/internal/agent/providers"
	"github.com/psligti/dawn-kestrel/internal/delegation"
	"github.com/psligti/dawn-kestrel/internal/eventbus"
	"github.com/psligti/dawn-kestrel/internal/orchestrator"
	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// app wires one in-process instance of every core component the CLI
// drives: a session store, the process-wide event bus, the task-table
// Orchestrator, and the bounded Delegation Engine sitting on top of it.
// Every CLI invocation builds a fresh app rather than talking to a
// long-lived daemon — kestrel is a CLI over the runtime's in-memory task
// table, not a client of one.
type app struct {
	store   sessions.Store
	manager *sessions.Manager
	bus     *eventbus.Bus
	orch    *orchestrator.Orchestrator
	engine  *delegation.Engine
}

// newApp constructs the runtime with an in-memory session store and, when
// ANTHROPIC_API_KEY is set, a real Anthropic-backed agent runtime; absent a
// key the orchestrator still tracks tasks but ExecuteAgent returns a
// usage error, since no LLM can actually run.
func newApp() (*app, error) {
	store := sessions.NewMemoryStore()
	bus := eventbus.New(nil)

	runtime, err := buildAgentRuntime(store)
	if err != nil {
		return nil, err
	}

	var agentRuntime orchestrator.AgentRuntime = runtime
	orch := orchestrator.New(agentRuntime, bus, nil)
	engine := delegation.NewEngine(orch, nil)

	return &app{
		store:   store,
		manager: sessions.NewManager(store),
		bus:     bus,
		orch:    orch,
		engine:  engine,
	}, nil
}

// noProviderRuntime reports a usage error for every delegation attempted
// without a configured LLM provider, so `kestrel agent run` fails clearly
// rather than panicking deep inside the Runtime.
type noProviderRuntime struct{}

func (noProviderRuntime) ExecuteAgent(_ context.Context, _ *models.AgentTask, _, _ string, _ []models.ToolDescriptor, _ *models.Session) (*models.AgentResult, error) {
	return nil, usageErrorf("no agent provider configured: set ANTHROPIC_API_KEY")
}

func buildAgentRuntime(store sessions.Store) (orchestrator.AgentRuntime, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return noProviderRuntime{}, nil
	}
	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: apiKey})
	if err != nil {
		return nil, internalErrorf("configure anthropic provider: %w", err)
	}
	runtime := agent.NewRuntime(provider, store)
	return agent.NewOrchestratorAdapter(runtime), nil
}

// writeJSON encodes v to w with the same two-space indentation convention
// the teacher's handlers use for --json output.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdout() io.Writer { return os.Stdout }
