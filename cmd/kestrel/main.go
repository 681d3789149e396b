// Package main provides the CLI entry point for the Kestrel orchestration
// runtime.
//
// Kestrel tracks one in-process task table across concurrent agent
// delegations and exposes it over a small set of session and agent
// commands; it does not front any messaging channel.
//
// # Basic Usage
//
// List sessions:
//
//	kestrel sessions list
//
// Create a session:
//
//	kestrel sessions create --project demo --directory . --title "first run"
//
// Delegate a task to an agent inside a session:
//
//	kestrel agent run --session <id> --agent researcher --message "find the bug"
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key used by the default agent runtime.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes per the CLI surface contract: 0 success, 1 user-facing
// failure (bad input, not-found), 2 internal/engine error.
const (
	exitSuccess  = 0
	exitUsage    = 1
	exitInternal = 2
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise command wiring directly.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kestrel",
		Short: "Kestrel - multi-agent delegation runtime",
		Long: `Kestrel tracks a task table across concurrent agent delegations:
one orchestrator, one event bus, and a bounded delegation engine that
spawns and supervises a tree of sub-agents per root task.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildSessionsCmd(),
		buildAgentCmd(),
	)

	return rootCmd
}

// exitCodeFor classifies a command error into the CLI's exit code
// convention. cliError carries an explicit code; anything else not
// traced to a usage mistake is treated as an internal failure.
func exitCodeFor(err error) int {
	var ce *cliError
	if asCLIError(err, &ce) {
		return ce.code
	}
	return exitInternal
}

// cliError pairs an error with the exit code it should produce.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &cliError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func internalErrorf(format string, args ...any) error {
	return &cliError{code: exitInternal, err: fmt.Errorf(format, args...)}
}

func asCLIError(err error, target **cliError) bool {
	for err != nil {
		if ce, ok := err.(*cliError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
