package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// Worker consumes tasks delivered by SQS to a Lambda function.
type Worker struct {
	registry *Registry
	logger   *slog.Logger
}

// NewWorker creates a Worker.
func NewWorker(registry *Registry, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{registry: registry, logger: logger}
}

// HandleSQS processes each record independently and reports transient
// failures as partial batch failures so SQS redelivers only those records.
// Undecodable records and permanent failures are acknowledged.
func (w *Worker) HandleSQS(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range event.Records {
		var task Task
		if err := json.Unmarshal([]byte(record.Body), &task); err != nil {
			w.logger.ErrorContext(ctx, "dropping undecodable task message",
				"message_id", record.MessageId,
				"error", err,
			)
			continue
		}
		if n, err := strconv.Atoi(record.Attributes["ApproximateReceiveCount"]); err == nil {
			task.Attempt = n
		}

		err := w.registry.Handle(ctx, task)
		switch {
		case err == nil:
		case IsPermanent(err):
			w.logger.ErrorContext(ctx, "task failed permanently",
				"message_id", record.MessageId,
				"task_id", task.ID,
				"kind", string(task.Kind),
				"error", err,
			)
		default:
			w.logger.WarnContext(ctx, "task failed; leaving for redelivery",
				"message_id", record.MessageId,
				"task_id", task.ID,
				"kind", string(task.Kind),
				"attempt", task.Attempt,
				"error", err,
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}
