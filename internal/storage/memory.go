package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/psligti/dawn-kestrel/internal/sessions"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// MemoryMemoryStore is an in-memory MemoryStore, used for tests and local
// runs without a configured database.
type MemoryMemoryStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.MemoryRecord // sessionID -> id -> record
}

// NewMemoryMemoryStore creates an in-memory memory-record store.
func NewMemoryMemoryStore() *MemoryMemoryStore {
	return &MemoryMemoryStore{records: make(map[string]map[string]*models.MemoryRecord)}
}

func (s *MemoryMemoryStore) Put(ctx context.Context, record *models.MemoryRecord) error {
	if record == nil || record.ID == "" || record.SessionID == "" {
		return fmt.Errorf("record with id and session_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.Created.IsZero() {
		record.Created = time.Now()
	}
	bucket, ok := s.records[record.SessionID]
	if !ok {
		bucket = make(map[string]*models.MemoryRecord)
		s.records[record.SessionID] = bucket
	}
	clone := *record
	bucket[record.ID] = &clone
	return nil
}

func (s *MemoryMemoryStore) Get(ctx context.Context, sessionID, id string) (*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	record, ok := bucket[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryMemoryStore) List(ctx context.Context, sessionID string, limit, offset int) ([]*models.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.records[sessionID]
	out := make([]*models.MemoryRecord, 0, len(bucket))
	for _, record := range bucket {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	if offset < 0 {
		offset = 0
	}
	if offset > len(out) {
		return []*models.MemoryRecord{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

func (s *MemoryMemoryStore) Delete(ctx context.Context, sessionID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := bucket[id]; !ok {
		return ErrNotFound
	}
	delete(bucket, id)
	return nil
}

// MemoryToolExecutionStore is an in-memory ToolExecutionStore.
type MemoryToolExecutionStore struct {
	mu      sync.RWMutex
	records map[string]map[string]*models.ToolExecutionRecord // sessionID -> id -> record
}

// NewMemoryToolExecutionStore creates an in-memory tool-execution log.
func NewMemoryToolExecutionStore() *MemoryToolExecutionStore {
	return &MemoryToolExecutionStore{records: make(map[string]map[string]*models.ToolExecutionRecord)}
}

func (s *MemoryToolExecutionStore) LogExecution(ctx context.Context, record *models.ToolExecutionRecord) error {
	if record == nil || record.ID == "" || record.SessionID == "" {
		return fmt.Errorf("record with id and session_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.LoggedAt.IsZero() {
		record.LoggedAt = time.Now()
	}
	bucket, ok := s.records[record.SessionID]
	if !ok {
		bucket = make(map[string]*models.ToolExecutionRecord)
		s.records[record.SessionID] = bucket
	}
	clone := *record
	bucket[record.ID] = &clone
	return nil
}

// UpdateExecution overwrites the stored state; repeated calls with the same
// terminal state converge to that state, satisfying the §8 round-trip
// property (log_execution followed by update_execution persists a record
// whose final state equals the last update's state).
func (s *MemoryToolExecutionStore) UpdateExecution(ctx context.Context, sessionID, id string, state models.ToolState, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.records[sessionID]
	if !ok {
		return ErrNotFound
	}
	record, ok := bucket[id]
	if !ok {
		return ErrNotFound
	}
	record.State = state
	at := updatedAt
	record.UpdatedAt = &at
	if state.TimeEnd != nil {
		record.EndTime = state.TimeEnd
	}
	return nil
}

func (s *MemoryToolExecutionStore) Get(ctx context.Context, sessionID, id string) (*models.ToolExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	record, ok := bucket[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryToolExecutionStore) List(ctx context.Context, sessionID string) ([]*models.ToolExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.records[sessionID]
	out := make([]*models.ToolExecutionRecord, 0, len(bucket))
	for _, record := range bucket {
		clone := *record
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// NewMemoryStoreSet constructs a StoreSet backed entirely by memory, pairing
// the in-memory session store from internal/sessions with the two record
// stores defined in this package.
func NewMemoryStoreSet() StoreSet {
	return StoreSet{
		Sessions:       sessions.NewMemoryStore(),
		Memory:         NewMemoryMemoryStore(),
		ToolExecutions: NewMemoryToolExecutionStore(),
	}
}
