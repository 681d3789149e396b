// Package storage provides concrete backends for the repository contracts
// the core consumes through internal/sessions.Store, plus the memory and
// tool-execution record stores named in the data model's external
// interfaces (session/message/part/memory/tool-execution subtrees).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// MemoryStore persists a session's long-term memory records
// ("memory/<session_id>/<memory_id>.json").
type MemoryStore interface {
	Put(ctx context.Context, record *models.MemoryRecord) error
	Get(ctx context.Context, sessionID, id string) (*models.MemoryRecord, error)
	List(ctx context.Context, sessionID string, limit, offset int) ([]*models.MemoryRecord, error)
	Delete(ctx context.Context, sessionID, id string) error
}

// ToolExecutionStore persists the durable tool-execution log
// ("tool_execution/<session_id>/<execution_id>.json"). LogExecution creates
// the initial record; UpdateExecution must be idempotent with respect to
// repeated calls carrying the same terminal state (§8 round-trip property).
type ToolExecutionStore interface {
	LogExecution(ctx context.Context, record *models.ToolExecutionRecord) error
	UpdateExecution(ctx context.Context, sessionID, id string, state models.ToolState, updatedAt time.Time) error
	Get(ctx context.Context, sessionID, id string) (*models.ToolExecutionRecord, error)
	List(ctx context.Context, sessionID string) ([]*models.ToolExecutionRecord, error)
}

// StoreSet groups the storage dependencies one backend construction
// function returns, so callers (cmd/kestrel, tests) wire one value instead
// of three.
type StoreSet struct {
	Sessions       sessions.Store
	Memory         MemoryStore
	ToolExecutions ToolExecutionStore
	closer         func() error
}

// Close releases any underlying resources (DB connections, file handles).
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
