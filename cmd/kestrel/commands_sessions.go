package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// =============================================================================
// Sessions Commands
// =============================================================================

// buildSessionsCmd creates the "sessions" command group: list/create/get/
// delete/update, the §6 session CLI surface.
func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage sessions",
	}
	cmd.AddCommand(
		buildSessionsListCmd(),
		buildSessionsCreateCmd(),
		buildSessionsGetCmd(),
		buildSessionsDeleteCmd(),
		buildSessionsUpdateCmd(),
	)
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var (
		projectID string
		limit     int
		offset    int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, projectID, limit, offset)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max number of sessions to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")
	return cmd
}

func runSessionsList(cmd *cobra.Command, projectID string, limit, offset int) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	list, err := a.store.List(cmd.Context(), sessions.ListOptions{ProjectID: projectID, Limit: limit, Offset: offset})
	if err != nil {
		return internalErrorf("list sessions: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), list)
}

func buildSessionsCreateCmd() *cobra.Command {
	var (
		projectID string
		directory string
		title     string
		agentID   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsCreate(cmd, projectID, directory, title, agentID)
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Project id (required)")
	cmd.Flags().StringVar(&directory, "directory", "", "Working directory (required)")
	cmd.Flags().StringVar(&title, "title", "", "Session title (required)")
	cmd.Flags().StringVar(&agentID, "agent", "", "Default agent id for this session")
	return cmd
}

func runSessionsCreate(cmd *cobra.Command, projectID, directory, title, agentID string) error {
	session := &models.Session{
		ID:        newSessionID(),
		ProjectID: projectID,
		Directory: directory,
		Title:     title,
		AgentID:   agentID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if field := session.Validate(); field != "" {
		return usageErrorf("missing required field: %s", field)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.store.Create(cmd.Context(), session); err != nil {
		return internalErrorf("create session: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), session)
}

func buildSessionsGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <session-id>",
		Short: "Get a session by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsGet(cmd, args[0])
		},
	}
	return cmd
}

func runSessionsGet(cmd *cobra.Command, id string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	session, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return sessionLookupError(id, err)
	}
	return writeJSON(cmd.OutOrStdout(), session)
}

func buildSessionsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd, args[0])
		},
	}
	return cmd
}

func runSessionsDelete(cmd *cobra.Command, id string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if err := a.store.Delete(cmd.Context(), id); err != nil {
		return sessionLookupError(id, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted session %s\n", id)
	return nil
}

func buildSessionsUpdateCmd() *cobra.Command {
	var (
		title   string
		agentID string
	)
	cmd := &cobra.Command{
		Use:   "update <session-id>",
		Short: "Update session metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsUpdate(cmd, args[0], title, agentID)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title (leave empty to keep current)")
	cmd.Flags().StringVar(&agentID, "agent", "", "New default agent id (leave empty to keep current)")
	return cmd
}

func runSessionsUpdate(cmd *cobra.Command, id, title, agentID string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	session, err := a.store.Get(cmd.Context(), id)
	if err != nil {
		return sessionLookupError(id, err)
	}
	if title != "" {
		session.Title = title
	}
	if agentID != "" {
		session.AgentID = agentID
	}
	session.UpdatedAt = time.Now()
	if err := a.store.Update(cmd.Context(), session); err != nil {
		return internalErrorf("update session: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), session)
}

// sessionLookupError maps the store's not-found sentinel to the CLI's
// user-facing exit code (1) and anything else to an internal error (2),
// per the §6 exit-code contract.
func sessionLookupError(id string, err error) error {
	if errors.Is(err, sessions.ErrNotFound) {
		return usageErrorf("session not found: %s", id)
	}
	return internalErrorf("session %s: %w", id, err)
}

func newSessionID() string {
	return "sess-" + uuid.NewString()
}
