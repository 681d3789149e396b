// Package orchestrator implements the task table that wraps every Agent
// Runtime invocation: delegate_task, run_parallel_agents, cancel_tasks, and
// the table's read-only queries. It is the direct counterpart of the
// teacher's internal/tasks package, but where the teacher tracks
// cron-scheduled jobs (ScheduledTask/TaskExecution keyed by a Schedule
// string and a Timezone), this package tracks one-shot agent invocations
// keyed by task id — delegate_task/run_parallel_agents/cancel_tasks replace
// the teacher's scheduler tick, and a single exclusive lock over two maps
// replaces its per-task row lock in Postgres.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/psligti/dawn-kestrel/internal/eventbus"
	"github.com/psligti/dawn-kestrel/pkg/models"
)

// ErrTaskNotFound is returned by queries for an unknown task id.
var ErrTaskNotFound = errors.New("orchestrator: task not found")

// ErrTaskNotPending is returned when delegate_task is called with a task
// whose status is not pending.
var ErrTaskNotPending = errors.New("orchestrator: task is not pending")

// AgentRuntime is the Agent Runtime (C6) seam the Orchestrator calls
// through. Accepting an interface here — rather than a concrete
// *agent.Runtime — lets the task table be exercised independently of
// whichever provider/loop machinery backs execute_agent, exactly the way
// the teacher's AgentExecutor in internal/tasks/executor.go wrapped
// *agent.Runtime.Process behind its own Executor interface.
type AgentRuntime interface {
	ExecuteAgent(ctx context.Context, task *models.AgentTask, sessionID, userMessage string, tools []models.ToolDescriptor, session *models.Session) (*models.AgentResult, error)
}

// Orchestrator is the thread-safe in-memory task table described by §4.7:
// tasks: id -> AgentTask, results: id -> TaskResult, guarded by one
// exclusive lock. No query returns a value that aliases internal state.
type Orchestrator struct {
	mu      sync.Mutex
	tasks   map[string]*models.AgentTask
	results map[string]*models.TaskResult
	runtime AgentRuntime
	bus     *eventbus.Bus
	nextID  func() string
}

// New constructs an empty Orchestrator. idGen generates task ids; pass nil
// to use a monotonic counter-based generator.
func New(runtime AgentRuntime, bus *eventbus.Bus, idGen func() string) *Orchestrator {
	if idGen == nil {
		var counter uint64
		var mu sync.Mutex
		idGen = func() string {
			mu.Lock()
			defer mu.Unlock()
			counter++
			return fmt.Sprintf("task-%d", counter)
		}
	}
	return &Orchestrator{
		tasks:   make(map[string]*models.AgentTask),
		results: make(map[string]*models.TaskResult),
		runtime: runtime,
		bus:     bus,
		nextID:  idGen,
	}
}

// DelegateTask records task, runs it through the Agent Runtime, and returns
// its task id. task.Status must be models.TaskPending; if task.TaskID is
// empty one is generated. On success the task transitions to completed and
// a TaskResult is stored with timestamps derived from the run's duration;
// on failure it transitions to failed, the error is stored, and the error
// is re-raised to the caller (per §4.7, delegate_task does not swallow
// runtime errors the way the Tool Execution Manager does for tool calls).
func (o *Orchestrator) DelegateTask(ctx context.Context, task *models.AgentTask, sessionID, userMessage string, tools []models.ToolDescriptor, session *models.Session) (string, error) {
	if task.Status != models.TaskPending {
		return "", ErrTaskNotPending
	}
	if task.TaskID == "" {
		task.TaskID = o.nextID()
	}

	o.mu.Lock()
	o.tasks[task.TaskID] = task
	o.mu.Unlock()

	o.publish(ctx, eventbus.TaskStarted, eventbus.Payload{
		"task_id": task.TaskID, "agent_name": task.AgentName, "parent_id": task.ParentID,
	})

	o.mu.Lock()
	task.Status = models.TaskRunning
	o.mu.Unlock()

	start := time.Now()
	result, err := o.runtime.ExecuteAgent(ctx, task, sessionID, userMessage, tools, session)
	duration := time.Since(start)

	o.mu.Lock()
	defer o.mu.Unlock()

	if err != nil {
		task.Status = models.TaskFailed
		task.Error = err.Error()
		o.results[task.TaskID] = &models.TaskResult{
			Task:        task,
			Error:       err.Error(),
			StartedAt:   start,
			CompletedAt: time.Now(),
		}
		o.publish(ctx, eventbus.TaskFailed, eventbus.Payload{
			"task_id": task.TaskID, "agent_name": task.AgentName, "parent_id": task.ParentID,
			"duration": duration, "error": err.Error(),
		})
		return task.TaskID, err
	}

	task.Status = models.TaskCompleted
	o.results[task.TaskID] = &models.TaskResult{
		Task:        task,
		Result:      result,
		StartedAt:   start,
		CompletedAt: start.Add(duration),
	}
	o.publish(ctx, eventbus.TaskCompleted, eventbus.Payload{
		"task_id": task.TaskID, "agent_name": task.AgentName, "parent_id": task.ParentID,
		"duration": duration,
	})
	return task.TaskID, nil
}

// parallelOutcome pairs a task id with the error (if any) from its run.
type parallelOutcome struct {
	taskID string
	err    error
}

// RunParallelAgents launches delegate_task for every (task, user_message)
// pair concurrently. len(tasks) must equal len(userMessages). One task's
// failure never prevents the others from completing; the returned slice
// holds only the ids of tasks that succeeded, in no particular order —
// failures are still recorded against the task table and logged by the
// caller via the TASK_FAILED event.
func (o *Orchestrator) RunParallelAgents(ctx context.Context, tasks []*models.AgentTask, sessionID string, userMessages []string, tools []models.ToolDescriptor, session *models.Session) ([]string, error) {
	if len(tasks) != len(userMessages) {
		return nil, fmt.Errorf("orchestrator: len(tasks)=%d != len(user_messages)=%d", len(tasks), len(userMessages))
	}

	outcomes := make(chan parallelOutcome, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(task *models.AgentTask, userMessage string) {
			defer wg.Done()
			id, err := o.DelegateTask(ctx, task, sessionID, userMessage, tools, session)
			outcomes <- parallelOutcome{taskID: id, err: err}
		}(task, userMessages[i])
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var succeeded []string
	for outcome := range outcomes {
		if outcome.err == nil && outcome.taskID != "" {
			succeeded = append(succeeded, outcome.taskID)
		}
	}
	return succeeded, nil
}

// CancelTasks marks every id whose task is still pending or running as
// cancelled, publishing TASK_CANCELLED for each, and returns how many were
// affected. Completed/failed/already-cancelled tasks are left untouched.
// This records intent only — an already-running invocation's cooperative
// abort is driven by the Tool Execution Manager's cancellation signal and
// the provider stream, not by the Orchestrator.
func (o *Orchestrator) CancelTasks(ctx context.Context, ids []string) int {
	o.mu.Lock()
	var cancelled []*models.AgentTask
	for _, id := range ids {
		task, ok := o.tasks[id]
		if !ok || task.Status.IsTerminal() {
			continue
		}
		task.Status = models.TaskCancelled
		cancelled = append(cancelled, task)
	}
	o.mu.Unlock()

	for _, task := range cancelled {
		o.publish(ctx, eventbus.TaskCancelled, eventbus.Payload{
			"task_id": task.TaskID, "agent_name": task.AgentName, "parent_id": task.ParentID,
		})
	}
	return len(cancelled)
}

// GetStatus returns the current status of a task.
func (o *Orchestrator) GetStatus(taskID string) (models.TaskStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[taskID]
	if !ok {
		return "", ErrTaskNotFound
	}
	return task.Status, nil
}

// GetResult returns a copy of a task's result, if one has been recorded.
func (o *Orchestrator) GetResult(taskID string) (*models.TaskResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	result, ok := o.results[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	copied := *result
	return &copied, nil
}

// GetActiveTasks returns every task that is pending or running.
func (o *Orchestrator) GetActiveTasks() []*models.AgentTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*models.AgentTask
	for _, task := range o.tasks {
		if task.Status.IsActive() {
			out = append(out, cloneTask(task))
		}
	}
	return out
}

// GetChildTasks returns every task whose ParentID matches parentID.
func (o *Orchestrator) GetChildTasks(parentID string) []*models.AgentTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*models.AgentTask
	for _, task := range o.tasks {
		if task.ParentID == parentID {
			out = append(out, cloneTask(task))
		}
	}
	return out
}

// ListTasks returns every task, optionally filtered to one status.
func (o *Orchestrator) ListTasks(statusFilter models.TaskStatus) []*models.AgentTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*models.AgentTask
	for _, task := range o.tasks {
		if statusFilter != "" && task.Status != statusFilter {
			continue
		}
		out = append(out, cloneTask(task))
	}
	return out
}

// ListResults returns every recorded TaskResult.
func (o *Orchestrator) ListResults() []*models.TaskResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*models.TaskResult, 0, len(o.results))
	for _, result := range o.results {
		copied := *result
		out = append(out, &copied)
	}
	return out
}

// ClearCompletedTasks removes every task (and its result) in a terminal
// state and returns the count removed.
func (o *Orchestrator) ClearCompletedTasks() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	cleared := 0
	for id, task := range o.tasks {
		if task.Status.IsTerminal() {
			delete(o.tasks, id)
			delete(o.results, id)
			cleared++
		}
	}
	return cleared
}

func (o *Orchestrator) publish(ctx context.Context, name eventbus.EventName, payload eventbus.Payload) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, name, payload)
}

func cloneTask(task *models.AgentTask) *models.AgentTask {
	copied := *task
	if task.ToolIDs != nil {
		copied.ToolIDs = append([]string(nil), task.ToolIDs...)
	}
	if task.SkillNames != nil {
		copied.SkillNames = append([]string(nil), task.SkillNames...)
	}
	return &copied
}
