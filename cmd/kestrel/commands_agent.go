package main

import (
	"github.com/spf13/cobra"

	"github.com/psligti/dawn-kestrel/pkg/models"
)

// =============================================================================
// Agent Commands
// =============================================================================

// buildAgentCmd creates the "agent" command group: a single task delegation
// (run) and a bounded delegation tree (delegate), the §6 "execute agent in
// session" surface plus the §4.8 Delegation Engine entry point.
func buildAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Execute agents against a session",
	}
	cmd.AddCommand(buildAgentRunCmd(), buildAgentDelegateCmd())
	return cmd
}

func buildAgentRunCmd() *cobra.Command {
	var (
		sessionID string
		agentName string
		message   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute agent_name + user_message in an existing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentRun(cmd, sessionID, agentName, message)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (required)")
	cmd.Flags().StringVar(&agentName, "agent", "", "Agent name (required)")
	cmd.Flags().StringVar(&message, "message", "", "User message (required)")
	return cmd
}

func runAgentRun(cmd *cobra.Command, sessionID, agentName, message string) error {
	if sessionID == "" || agentName == "" || message == "" {
		return usageErrorf("--session, --agent and --message are all required")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	session, err := a.store.Get(ctx, sessionID)
	if err != nil {
		return sessionLookupError(sessionID, err)
	}

	task := models.NewAgentTask("", agentName, message)
	taskID, err := a.orch.DelegateTask(ctx, task, sessionID, message, nil, session)
	if err != nil {
		return internalErrorf("delegate_task: %w", err)
	}

	result, err := a.orch.GetResult(taskID)
	if err != nil {
		return internalErrorf("get result for %s: %w", taskID, err)
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func buildAgentDelegateCmd() *cobra.Command {
	var (
		sessionID string
		agentName string
		prompt    string
		mode      string
	)
	cmd := &cobra.Command{
		Use:   "delegate",
		Short: "Run the bounded delegation engine from a root agent/prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentDelegate(cmd, sessionID, agentName, prompt, mode)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (required)")
	cmd.Flags().StringVar(&agentName, "agent", "", "Root agent name (required)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Root prompt (required)")
	cmd.Flags().StringVar(&mode, "mode", "breadth_first", "Traversal mode: breadth_first, depth_first, adaptive")
	return cmd
}

func runAgentDelegate(cmd *cobra.Command, sessionID, agentName, prompt, mode string) error {
	if sessionID == "" || agentName == "" || prompt == "" {
		return usageErrorf("--session, --agent and --prompt are all required")
	}

	traversal := models.TraversalMode(mode)
	switch traversal {
	case models.TraversalBFS, models.TraversalDFS, models.TraversalAdaptive:
	default:
		return usageErrorf("invalid --mode %q", mode)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if _, err := a.store.Get(ctx, sessionID); err != nil {
		return sessionLookupError(sessionID, err)
	}

	cfg := models.DelegationConfig{
		Mode:         traversal,
		Budget:       models.DefaultDelegationBudget(),
		EvidenceKeys: models.DefaultEvidenceKeys(),
	}

	result, err := a.engine.Delegate(ctx, agentName, prompt, sessionID, nil, cfg)
	if err != nil {
		return internalErrorf("delegate: %w", err)
	}
	if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
		return internalErrorf("write result: %w", err)
	}
	if !result.Success {
		return usageErrorf("delegation stopped without success (%s)", result.StopReason)
	}
	return nil
}
