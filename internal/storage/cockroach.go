package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// NewCockroachStoresFromDSN opens one Postgres/CockroachDB connection pool
// and wires it to a session store, a memory-record store, and a
// tool-execution log — the three repository contracts named in the data
// model's external interfaces.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	sessionStore, err := sessions.NewCockroachStoreFromDSN(dsn, nil)
	if err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("open session store: %w", err)
	}

	return StoreSet{
		Sessions:       sessionStore,
		Memory:         &cockroachMemoryStore{db: db},
		ToolExecutions: &cockroachToolExecutionStore{db: db},
		closer:         db.Close,
	}, nil
}

type cockroachMemoryStore struct {
	db *sql.DB
}

// Schema: memory_records(id, session_id, content, embedding, metadata, created_at)
func (s *cockroachMemoryStore) Put(ctx context.Context, record *models.MemoryRecord) error {
	if record == nil || record.ID == "" || record.SessionID == "" {
		return fmt.Errorf("record with id and session_id is required")
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if record.Created.IsZero() {
		record.Created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_records (id, session_id, content, embedding, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET content = $3, embedding = $4, metadata = $5
	`, record.ID, record.SessionID, record.Content, pq.Array(record.Embedding), metadata, record.Created)
	if err != nil {
		return fmt.Errorf("put memory record: %w", err)
	}
	return nil
}

func (s *cockroachMemoryStore) Get(ctx context.Context, sessionID, id string) (*models.MemoryRecord, error) {
	record := &models.MemoryRecord{}
	var metadataJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, content, embedding, metadata, created_at
		FROM memory_records WHERE session_id = $1 AND id = $2
	`, sessionID, id).Scan(&record.ID, &record.SessionID, &record.Content, pq.Array(&record.Embedding), &metadataJSON, &record.Created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory record: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return record, nil
}

func (s *cockroachMemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*models.MemoryRecord, error) {
	query := `SELECT id, session_id, content, embedding, metadata, created_at FROM memory_records WHERE session_id = $1 ORDER BY created_at ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT $2 OFFSET $3"
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memory records: %w", err)
	}
	defer rows.Close()

	var out []*models.MemoryRecord
	for rows.Next() {
		record := &models.MemoryRecord{}
		var metadataJSON []byte
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Content, pq.Array(&record.Embedding), &metadataJSON, &record.Created); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *cockroachMemoryStore) Delete(ctx context.Context, sessionID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE session_id = $1 AND id = $2`, sessionID, id)
	if err != nil {
		return fmt.Errorf("delete memory record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type cockroachToolExecutionStore struct {
	db *sql.DB
}

// Schema: tool_executions(id, session_id, message_id, tool_id, state,
// start_time, end_time, logged_at, updated_at)
func (s *cockroachToolExecutionStore) LogExecution(ctx context.Context, record *models.ToolExecutionRecord) error {
	if record == nil || record.ID == "" || record.SessionID == "" {
		return fmt.Errorf("record with id and session_id is required")
	}
	state, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if record.LoggedAt.IsZero() {
		record.LoggedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (id, session_id, message_id, tool_id, state, start_time, end_time, logged_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, record.ID, record.SessionID, record.MessageID, record.ToolID, state, record.StartTime, record.EndTime, record.LoggedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("log tool execution: %w", err)
	}
	return nil
}

func (s *cockroachToolExecutionStore) UpdateExecution(ctx context.Context, sessionID, id string, state models.ToolState, updatedAt time.Time) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tool_executions SET state = $1, end_time = $2, updated_at = $3
		WHERE session_id = $4 AND id = $5
	`, stateJSON, state.TimeEnd, updatedAt, sessionID, id)
	if err != nil {
		return fmt.Errorf("update tool execution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachToolExecutionStore) Get(ctx context.Context, sessionID, id string) (*models.ToolExecutionRecord, error) {
	record := &models.ToolExecutionRecord{}
	var stateJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, message_id, tool_id, state, start_time, end_time, logged_at, updated_at
		FROM tool_executions WHERE session_id = $1 AND id = $2
	`, sessionID, id).Scan(&record.ID, &record.SessionID, &record.MessageID, &record.ToolID, &stateJSON, &record.StartTime, &record.EndTime, &record.LoggedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool execution: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &record.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return record, nil
}

func (s *cockroachToolExecutionStore) List(ctx context.Context, sessionID string) ([]*models.ToolExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, message_id, tool_id, state, start_time, end_time, logged_at, updated_at
		FROM tool_executions WHERE session_id = $1 ORDER BY start_time ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tool executions: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolExecutionRecord
	for rows.Next() {
		record := &models.ToolExecutionRecord{}
		var stateJSON []byte
		if err := rows.Scan(&record.ID, &record.SessionID, &record.MessageID, &record.ToolID, &stateJSON, &record.StartTime, &record.EndTime, &record.LoggedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tool execution: %w", err)
		}
		if err := json.Unmarshal(stateJSON, &record.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
