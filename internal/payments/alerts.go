package payments

import (
	"context"
	"encoding/json"
	"log/slog"

	"marketingapi/internal/tasks"
	"marketingapi/internal/types"
)

// AlertTask is the payload of a tasks.KindAdminAlert task.
type AlertTask struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// Alerter schedules operator alerts on the task runner so the request that
// raised them is not slowed down by delivery.
type Alerter struct {
	runner tasks.Runner
	logger *slog.Logger
}

// NewAlerter creates an Alerter.
func NewAlerter(runner tasks.Runner, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{runner: runner, logger: logger}
}

func (a *Alerter) alert(ctx context.Context, msg message) {
	a.Notify(ctx, msg.Subject, msg.Body, "")
}

// Notify schedules an admin email and push. Scheduling failures are logged.
func (a *Alerter) Notify(ctx context.Context, subject, body, replyTo string) {
	task, err := tasks.NewTask(ctx, tasks.KindAdminAlert, types.GetEventID(ctx), AlertTask{
		Subject: subject,
		Body:    body,
		ReplyTo: replyTo,
	})
	if err == nil {
		err = a.runner.Submit(ctx, task)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to schedule admin alert", "subject", subject, "error", err)
	}
}

// AlertHandler returns the task handler delivering admin alerts.
func AlertHandler(n *Notifier) tasks.Handler {
	return func(ctx context.Context, task tasks.Task) error {
		var p AlertTask
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return tasks.Permanent(err)
		}
		n.Admin(ctx, message{Subject: p.Subject, Body: p.Body}, p.ReplyTo)
		return nil
	}
}
