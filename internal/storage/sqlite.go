package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// NewSQLiteStoresFromPath opens a local SQLite database (pure-Go driver, no
// CGo) and wires it to a session store, a memory-record store, and a
// tool-execution log. This is the default backend for single-user/local
// runs; Postgres/CockroachDB (NewCockroachStoresFromDSN) is for shared
// deployments.
func NewSQLiteStoresFromPath(path string) (StoreSet, error) {
	if path == "" {
		return StoreSet{}, fmt.Errorf("path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer to avoid SQLITE_BUSY under concurrent sessions

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("init schema: %w", err)
	}

	return StoreSet{
		Sessions:       &sqliteSessionStore{db: db},
		Memory:         &sqliteMemoryStore{db: db},
		ToolExecutions: &sqliteToolExecutionStore{db: db},
		closer:         db.Close,
	}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			directory TEXT NOT NULL,
			title TEXT NOT NULL,
			slug TEXT,
			message_counter INTEGER NOT NULL DEFAULT 0,
			agent_id TEXT,
			channel TEXT,
			channel_id TEXT,
			key TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			channel TEXT,
			channel_id TEXT,
			direction TEXT,
			role TEXT NOT NULL,
			content TEXT,
			attachments TEXT,
			tool_calls TEXT,
			tool_results TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS memory_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			metadata TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tool_executions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_id TEXT,
			tool_id TEXT NOT NULL,
			state TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			logged_at DATETIME NOT NULL,
			updated_at DATETIME
		);
	`)
	return err
}

type sqliteSessionStore struct {
	db *sql.DB
}

func (s *sqliteSessionStore) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, directory, title, slug, message_counter, agent_id, channel, channel_id, key, metadata, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, session.ID, session.ProjectID, session.Directory, session.Title, session.Slug, session.MessageCounter,
		session.AgentID, session.Channel, session.ChannelID, session.Key, metadata, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *sqliteSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	var metadataJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, directory, title, slug, message_counter, agent_id, channel, channel_id, key, metadata, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.ProjectID, &session.Directory, &session.Title, &session.Slug, &session.MessageCounter,
		&session.AgentID, &session.Channel, &session.ChannelID, &session.Key, &metadataJSON, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return session, nil
}

func (s *sqliteSessionStore) Update(ctx context.Context, session *models.Session) error {
	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	session.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET title=?, directory=?, project_id=?, slug=?, message_counter=?, metadata=?, updated_at=?
		WHERE id=?
	`, session.Title, session.Directory, session.ProjectID, session.Slug, session.MessageCounter, metadata, session.UpdatedAt, session.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
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

func (s *sqliteSessionStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	_, _ = s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id)
	return nil
}

func (s *sqliteSessionStore) List(ctx context.Context, opts sessions.ListOptions) ([]*models.Session, error) {
	query := `SELECT id, project_id, directory, title, slug, message_counter, agent_id, channel, channel_id, key, metadata, created_at, updated_at FROM sessions`
	var args []interface{}
	if opts.ProjectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, opts.ProjectID)
	}
	query += " ORDER BY updated_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session := &models.Session{}
		var metadataJSON sql.NullString
		if err := rows.Scan(&session.ID, &session.ProjectID, &session.Directory, &session.Title, &session.Slug, &session.MessageCounter,
			&session.AgentID, &session.Channel, &session.ChannelID, &session.Key, &metadataJSON, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &session.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

func (s *sqliteSessionStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	toolResults, err := json.Marshal(msg.ToolResults)
	if err != nil {
		return fmt.Errorf("marshal tool results: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var counter int
	if err := tx.QueryRowContext(ctx, `SELECT message_counter FROM sessions WHERE id = ?`, sessionID).Scan(&counter); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("read message counter: %w", err)
	}
	counter++
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET message_counter = ?, updated_at = ? WHERE id = ?`, counter, time.Now(), sessionID); err != nil {
		return fmt.Errorf("advance message counter: %w", err)
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s_%d", sessionID, counter)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, channel, channel_id, direction, role, content, attachments, tool_calls, tool_results, metadata, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, msg.ID, sessionID, msg.Channel, msg.ChannelID, msg.Direction, msg.Role, msg.Content, attachments, toolCalls, toolResults, metadata, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteSessionStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, channel, channel_id, direction, role, content, attachments, tool_calls, tool_results, metadata, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var attachments, toolCalls, toolResults, metadata sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Channel, &msg.ChannelID, &msg.Direction, &msg.Role, &msg.Content,
			&attachments, &toolCalls, &toolResults, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if attachments.Valid && attachments.String != "" && attachments.String != "null" {
			if err := json.Unmarshal([]byte(attachments.String), &msg.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshal attachments: %w", err)
			}
		}
		if toolCalls.Valid && toolCalls.String != "" && toolCalls.String != "null" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		if toolResults.Valid && toolResults.String != "" && toolResults.String != "null" {
			if err := json.Unmarshal([]byte(toolResults.String), &msg.ToolResults); err != nil {
				return nil, fmt.Errorf("unmarshal tool results: %w", err)
			}
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

type sqliteMemoryStore struct {
	db *sql.DB
}

func (s *sqliteMemoryStore) Put(ctx context.Context, record *models.MemoryRecord) error {
	if record == nil || record.ID == "" || record.SessionID == "" {
		return fmt.Errorf("record with id and session_id is required")
	}
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	embedding, err := json.Marshal(record.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	if record.Created.IsZero() {
		record.Created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_records (id, session_id, content, embedding, metadata, created_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET content=excluded.content, embedding=excluded.embedding, metadata=excluded.metadata
	`, record.ID, record.SessionID, record.Content, embedding, metadata, record.Created)
	if err != nil {
		return fmt.Errorf("put memory record: %w", err)
	}
	return nil
}

func (s *sqliteMemoryStore) Get(ctx context.Context, sessionID, id string) (*models.MemoryRecord, error) {
	record := &models.MemoryRecord{}
	var metadataJSON, embeddingJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, content, embedding, metadata, created_at FROM memory_records WHERE session_id=? AND id=?
	`, sessionID, id).Scan(&record.ID, &record.SessionID, &record.Content, &embeddingJSON, &metadataJSON, &record.Created)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory record: %w", err)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if embeddingJSON.Valid && embeddingJSON.String != "" && embeddingJSON.String != "null" {
		if err := json.Unmarshal([]byte(embeddingJSON.String), &record.Embedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return record, nil
}

func (s *sqliteMemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*models.MemoryRecord, error) {
	query := `SELECT id, session_id, content, embedding, metadata, created_at FROM memory_records WHERE session_id=? ORDER BY created_at ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
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
		var metadataJSON, embeddingJSON sql.NullString
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Content, &embeddingJSON, &metadataJSON, &record.Created); err != nil {
			return nil, fmt.Errorf("scan memory record: %w", err)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		if embeddingJSON.Valid && embeddingJSON.String != "" && embeddingJSON.String != "null" {
			if err := json.Unmarshal([]byte(embeddingJSON.String), &record.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding: %w", err)
			}
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *sqliteMemoryStore) Delete(ctx context.Context, sessionID, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE session_id=? AND id=?`, sessionID, id)
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

type sqliteToolExecutionStore struct {
	db *sql.DB
}

func (s *sqliteToolExecutionStore) LogExecution(ctx context.Context, record *models.ToolExecutionRecord) error {
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
		VALUES (?,?,?,?,?,?,?,?,?)
	`, record.ID, record.SessionID, record.MessageID, record.ToolID, state, record.StartTime, record.EndTime, record.LoggedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("log tool execution: %w", err)
	}
	return nil
}

func (s *sqliteToolExecutionStore) UpdateExecution(ctx context.Context, sessionID, id string, state models.ToolState, updatedAt time.Time) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tool_executions SET state=?, end_time=?, updated_at=? WHERE session_id=? AND id=?
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

func (s *sqliteToolExecutionStore) Get(ctx context.Context, sessionID, id string) (*models.ToolExecutionRecord, error) {
	record := &models.ToolExecutionRecord{}
	var stateJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, message_id, tool_id, state, start_time, end_time, logged_at, updated_at
		FROM tool_executions WHERE session_id=? AND id=?
	`, sessionID, id).Scan(&record.ID, &record.SessionID, &record.MessageID, &record.ToolID, &stateJSON, &record.StartTime, &record.EndTime, &record.LoggedAt, &record.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tool execution: %w", err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &record.State); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return record, nil
}

func (s *sqliteToolExecutionStore) List(ctx context.Context, sessionID string) ([]*models.ToolExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, message_id, tool_id, state, start_time, end_time, logged_at, updated_at
		FROM tool_executions WHERE session_id=? ORDER BY start_time ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list tool executions: %w", err)
	}
	defer rows.Close()

	var out []*models.ToolExecutionRecord
	for rows.Next() {
		record := &models.ToolExecutionRecord{}
		var stateJSON string
		if err := rows.Scan(&record.ID, &record.SessionID, &record.MessageID, &record.ToolID, &stateJSON, &record.StartTime, &record.EndTime, &record.LoggedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tool execution: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &record.State); err != nil {
			return nil, fmt.Errorf("unmarshal state: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
