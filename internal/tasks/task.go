// Package tasks runs side-effect work out of band from the request that
// produced it. Execution is at-least-once and unordered: handlers must be
// idempotent, and a task may run again after a partial failure.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketingapi/internal/types"
)

// Kind identifies the handler a task is routed to.
type Kind string

const (
	KindPaymentSideEffects Kind = "payment.side_effects"
	KindAdminAlert         Kind = "notify.admin"
)

// Task is the serializable unit of work. Payload is decoded by the handler
// registered for Kind.
type Task struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Key        string          `json:"key,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	RequestID  string          `json:"request_id,omitempty"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask marshals payload and stamps the task with an ID and the request ID
// carried by ctx. Key is a free-form correlation value, usually the event ID.
func NewTask(ctx context.Context, kind Kind, key string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("tasks: marshal %s payload: %w", kind, err)
	}
	return Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Key:        key,
		Payload:    raw,
		RequestID:  types.GetRequestID(ctx),
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Runner accepts tasks for out-of-band execution. Submit returns once the task
// is accepted, not when it has run.
type Runner interface {
	Submit(ctx context.Context, task Task) error
	Close(ctx context.Context) error
}

// Handler executes one task. Returning an error schedules a retry unless the
// error is marked Permanent.
type Handler func(ctx context.Context, task Task) error

// ErrRunnerClosed is returned by Submit after Close.
var ErrRunnerClosed = errors.New("tasks: runner is closed")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or any error it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Registry routes tasks to handlers by Kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register binds h to kind, replacing any previous handler.
func (r *Registry) Register(kind Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Handle dispatches task to its handler. An unknown kind is a permanent failure.
func (r *Registry) Handle(ctx context.Context, task Task) error {
	r.mu.RLock()
	h, ok := r.handlers[task.Kind]
	r.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("tasks: no handler registered for kind %q", task.Kind))
	}
	if task.RequestID != "" {
		ctx = types.WithRequestID(ctx, task.RequestID)
	}
	return h(ctx, task)
}
