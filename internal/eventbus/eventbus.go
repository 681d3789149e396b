// Package eventbus provides a single, process-wide typed publish/subscribe
// surface for lifecycle events emitted by every layer of the runtime —
// Agent Runtime, Tool Execution Manager, Orchestrator, and Session Store.
//
// Adapted from the hook registry/dispatch pattern in haasonsaas-nexus's
// internal/hooks (priority-sorted handler slices under a RWMutex, panic
// recovery per handler, a logged-but-isolated error path), narrowed to the
// event bus's three operations and its fixed, canonical event-name
// vocabulary rather than the teacher's open string-keyed gateway events.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EventName identifies one of the canonical lifecycle events. Unlike the
// teacher's open-ended hook EventType, this is a closed set: every value
// that can flow through the bus is declared below.
type EventName string

const (
	AgentInitialized EventName = "AGENT_INITIALIZED"
	AgentReady       EventName = "AGENT_READY"
	AgentExecuting   EventName = "AGENT_EXECUTING"
	AgentCleanup     EventName = "AGENT_CLEANUP"
	AgentError       EventName = "AGENT_ERROR"

	ToolStarted   EventName = "TOOL_STARTED"
	ToolCompleted EventName = "TOOL_COMPLETED"
	ToolError     EventName = "TOOL_ERROR"

	TaskStarted   EventName = "TASK_STARTED"
	TaskCompleted EventName = "TASK_COMPLETED"
	TaskFailed    EventName = "TASK_FAILED"
	TaskCancelled EventName = "TASK_CANCELLED"

	MessageCreated EventName = "MESSAGE_CREATED"
	MessageUpdated EventName = "MESSAGE_UPDATED"

	SessionCreated EventName = "SESSION_CREATED"
	SessionUpdated EventName = "SESSION_UPDATED"
	SessionDeleted EventName = "SESSION_DELETED"
)

// Payload is the opaque, event-specific map carried by a publish call —
// keys vary by EventName (session_id, agent_name, task_id, part_id, tool,
// input, output, error, duration, parent_id, ...); see the canonical key
// list in the package doc of the caller that publishes each event.
type Payload map[string]any

// Handler processes one published event. A handler that panics or returns
// an error is isolated: logged, and never allowed to affect sibling
// handlers or the publisher.
type Handler func(ctx context.Context, name EventName, payload Payload) error

// UnsubscribeFunc detaches a previously registered handler.
type UnsubscribeFunc func()

type subscription struct {
	id      uint64
	name    EventName
	handler Handler
}

// Bus is the process-wide pub/sub surface. The zero value is not usable;
// construct with New.
type Bus struct {
	mu        sync.RWMutex
	subs      map[EventName][]*subscription
	nextID    uint64
	logger    *slog.Logger
}

// New creates an empty event bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[EventName][]*subscription),
		logger: logger.With("component", "eventbus"),
	}
}

// Subscribe registers handler to run, in subscription order relative to
// other handlers on the same event name, whenever name is published.
// The returned func detaches the handler; calling it more than once is a
// no-op.
func (b *Bus) Subscribe(name EventName, handler Handler) UnsubscribeFunc {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, name: name, handler: handler}
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribe(sub)
		})
	}
}

func (b *Bus) unsubscribe(target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[target.name]
	for i, s := range list {
		if s.id == target.id {
			b.subs[target.name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ClearSubscriptions removes every subscriber of name. With no arguments it
// clears the entire bus.
func (b *Bus) ClearSubscriptions(name ...EventName) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(name) == 0 {
		b.subs = make(map[EventName][]*subscription)
		return
	}
	for _, n := range name {
		delete(b.subs, n)
	}
}

// Publish delivers payload to every current subscriber of name, in
// subscription order. Delivery is fire-and-forget: Publish never returns an
// error on a handler's behalf, and a handler that fails does not stop the
// ones after it. The subscriber list is snapshotted under the read lock and
// then dispatched without holding it, so a handler may safely Subscribe or
// unsubscribe during its own call.
func (b *Bus) Publish(ctx context.Context, name EventName, payload Payload) {
	b.mu.RLock()
	list := append([]*subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	for _, sub := range list {
		b.dispatch(ctx, sub, name, payload)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *subscription, name EventName, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event handler panicked",
				"event", name, "subscription_id", sub.id, "panic", fmt.Sprint(r))
		}
	}()

	if err := sub.handler(ctx, name, payload); err != nil {
		b.logger.Warn("event handler error",
			"event", name, "subscription_id", sub.id, "error", err)
	}
}

// SubscriberCount reports how many handlers are currently registered for
// name; used by tests and diagnostics.
func (b *Bus) SubscriberCount(name EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}
