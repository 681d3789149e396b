package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/psligti/dawn-kestrel/pkg/models"
)

// cronParser accepts both the standard 5-field form and the 6-field form
// with optional leading seconds — the same parser configuration the
// teacher's task scheduler used for ScheduledTask.Schedule.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// RetryAgentRuntime re-executes a stagnant delegation root on the
// scheduler's behalf; satisfied by *delegation.Engine.Delegate in practice.
type RetryAgentRuntime interface {
	Retry(ctx context.Context, rootTaskID string) (*models.AgentResult, error)
}

// ReDelegationSchedule binds a cron expression to one root task id whose
// delegation tree should be retried when the expression fires.
type ReDelegationSchedule struct {
	ID         string
	Expression string
	RootTaskID string
	NextRun    time.Time
}

// Scheduler periodically re-runs a stagnant delegation root on a cron
// schedule. It is not part of the core Orchestrator algorithm in §4.7 — the
// task table itself is driven entirely by delegate_task/run_parallel_agents
// — but the teacher's internal/tasks/scheduler.go cron-and-worker-lock
// idiom is retained here as an optional trigger a caller can wire up when
// it wants periodic re-delegation of a root that previously converged or
// stagnated, rather than discarding robfig/cron from the module entirely.
type Scheduler struct {
	mu        sync.Mutex
	schedules map[string]*ReDelegationSchedule
	runtime   RetryAgentRuntime
	workerID  string
	logger    *slog.Logger

	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewScheduler constructs a scheduler bound to runtime. pollInterval
// defaults to 10 seconds, matching the teacher's SchedulerConfig default.
func NewScheduler(runtime RetryAgentRuntime, pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		schedules:    make(map[string]*ReDelegationSchedule),
		runtime:      runtime,
		workerID:     uuid.NewString(),
		logger:       logger.With("component", "orchestrator-scheduler"),
		pollInterval: pollInterval,
	}
}

// AddSchedule registers a cron expression that re-delegates rootTaskID each
// time it fires, returning the schedule id.
func (s *Scheduler) AddSchedule(expression, rootTaskID string) (string, error) {
	spec, err := cronParser.Parse(expression)
	if err != nil {
		return "", fmt.Errorf("parse cron expression: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.schedules[id] = &ReDelegationSchedule{
		ID:         id,
		Expression: expression,
		RootTaskID: rootTaskID,
		NextRun:    spec.Next(time.Now()),
	}
	return id, nil
}

// RemoveSchedule unregisters a schedule by id.
func (s *Scheduler) RemoveSchedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
}

// Start begins polling for due schedules until ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runDue(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for any in-flight run to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*ReDelegationSchedule
	for _, sched := range s.schedules {
		if !sched.NextRun.After(now) {
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		s.logger.Debug("re-delegating stagnant root", "schedule_id", sched.ID, "root_task_id", sched.RootTaskID, "worker_id", s.workerID)
		if _, err := s.runtime.Retry(ctx, sched.RootTaskID); err != nil {
			s.logger.Warn("scheduled re-delegation failed", "schedule_id", sched.ID, "root_task_id", sched.RootTaskID, "error", err)
		}

		spec, err := cronParser.Parse(sched.Expression)
		if err != nil {
			continue
		}
		s.mu.Lock()
		if current, ok := s.schedules[sched.ID]; ok {
			current.NextRun = spec.Next(now)
		}
		s.mu.Unlock()
	}
}
