package sessions

import (
	"context"
	"errors"

	"github.com/psligti/dawn-kestrel/pkg/models"
)

// ErrNotFound is returned by Store.Get (and Manager.GetSession) when a
// session id has no backing record. This settles §9's "dynamic typing
// around Optional<Session> or Result<Session>" Design Note: the core
// standardizes on (value, error) with this sentinel rather than a second
// Result wrapper type — Agent Runtime (C6) maps it directly to its
// NotFound error kind.
var ErrNotFound = errors.New("sessions: not found")

// Store is the interface for session persistence (§6 session store
// contract). Concrete backends (memory, Cockroach/Postgres) live in this
// package; the core consumes only this interface.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts ListOptions) ([]*models.Session, error)

	// AppendMessage persists a message (with its parts) under the session
	// and advances the session's message_counter. Implementations must do
	// this atomically with respect to concurrent appends on the same
	// session (see Manager.lockSession / UnitOfWork).
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)
}

// ListOptions configures session listing.
type ListOptions struct {
	ProjectID string
	Limit     int
	Offset    int
}

// SessionManagerLike is the minimal contract the Agent Runtime (C6) and
// Streaming LLM Session (C5) depend on, matching spec §4.6 step 2's
// "session-manager contract returns either Optional<Session> or
// Result<Session>" — this core always returns (*models.Session, error)
// with ErrNotFound as the sentinel "absent" case.
type SessionManagerLike interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error
}

// Manager adapts a Store to the SessionManagerLike contract and provides
// the per-session locking the teacher's Runtime uses (tool_registry.go
// sessionLock pattern), generalized here since both C5 and C7 need to
// serialize writes to one session's message history.
type Manager struct {
	store Store
	locks *SessionLocker
}

// NewManager wraps a Store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: NewSessionLocker(DefaultLockTimeout)}
}

// GetSession returns ErrNotFound (wrapped) when the store has no record,
// never a nil,nil pair — this is the concrete resolution of the Optional-
// vs-Result ambiguity from Design Notes §9.
func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return m.store.Get(ctx, id)
}

// AppendMessage serializes concurrent writers per session id before
// delegating to the store, so message_counter increments stay monotonic
// even under concurrent Streaming LLM Sessions (§5 "owned by one logical
// caller... concurrent invocations must use separate sessions" — the lock
// makes that a hard guarantee rather than a documented caller obligation).
func (m *Manager) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	if err := m.locks.LockWithContext(ctx, sessionID); err != nil {
		return err
	}
	defer m.locks.Unlock(sessionID)
	return m.store.AppendMessage(ctx, sessionID, msg)
}

// Store exposes the underlying Store for callers (CLI, tests) that need
// full CRUD rather than just the SessionManagerLike subset.
func (m *Manager) Store() Store { return m.store }
