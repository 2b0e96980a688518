package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSRunner publishes tasks to an SQS queue consumed by the side-effect worker.
// Retries come from the queue's redrive policy.
type SQSRunner struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

var _ Runner = (*SQSRunner)(nil)

// NewSQSRunner creates an SQSRunner targeting queueURL.
func NewSQSRunner(client SQSSender, queueURL string, logger *slog.Logger) *SQSRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSRunner{client: client, queueURL: queueURL, logger: logger}
}

func (r *SQSRunner) Submit(ctx context.Context, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("tasks: marshal task %s: %w", task.ID, err)
	}

	out, err := r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(r.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(task.Kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("tasks: send task %s to %s: %w", task.ID, r.queueURL, err)
	}

	r.logger.InfoContext(ctx, "task enqueued",
		"task_id", task.ID,
		"kind", string(task.Kind),
		"key", task.Key,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

func (r *SQSRunner) Close(context.Context) error { return nil }
