package tasks

import "context"

// InlineRunner runs each task synchronously inside Submit, once, and returns
// the handler's error. It suits tests and one-shot tools.
type InlineRunner struct {
	registry *Registry
}

var _ Runner = (*InlineRunner)(nil)

// NewInlineRunner creates an InlineRunner.
func NewInlineRunner(registry *Registry) *InlineRunner {
	return &InlineRunner{registry: registry}
}

func (r *InlineRunner) Submit(ctx context.Context, task Task) error {
	task.Attempt = 1
	return r.registry.Handle(ctx, task)
}

func (r *InlineRunner) Close(context.Context) error { return nil }
