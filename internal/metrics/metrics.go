// Package metrics publishes webhook and side-effect telemetry.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"marketingapi/internal/types"
)

// Metric and dimension names.
const (
	MetricWebhookEvent   = "WebhookEvent"
	MetricWebhookLatency = "WebhookLatency"
	MetricSideEffect     = "SideEffect"

	DimEventType = "EventType"
	DimOutcome   = "Outcome"
	DimKind      = "Kind"
	DimResult    = "Result"
)

// Side-effect results.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Recorder receives telemetry from the webhook path and task handlers.
// Implementations must not block the caller on delivery failures.
type Recorder interface {
	RecordWebhook(ctx context.Context, eventType string, outcome types.WebhookOutcome, elapsed time.Duration)
	RecordSideEffect(ctx context.Context, kind string, result string)
}

// Noop discards all telemetry.
type Noop struct{}

func (Noop) RecordWebhook(context.Context, string, types.WebhookOutcome, time.Duration) {}
func (Noop) RecordSideEffect(context.Context, string, string)                           {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder emits:
//   - WebhookEvent: Dims {EventType, Outcome}, one per delivery
//   - WebhookLatency: Dims {Outcome}, milliseconds
//   - SideEffect: Dims {Kind, Result}, one per task attempt outcome
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Recorder = (*CloudWatchRecorder)(nil)

// NewCloudWatchRecorder creates a CloudWatchRecorder publishing to namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRecorder{client: client, namespace: namespace, logger: logger}
}

// RecordWebhook emits a count and a latency datum in one call.
func (m *CloudWatchRecorder) RecordWebhook(ctx context.Context, eventType string, outcome types.WebhookOutcome, elapsed time.Duration) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.put(ctx, "webhook",
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricWebhookEvent),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimEventType), Value: aws.String(eventType)},
				{Name: aws.String(DimOutcome), Value: aws.String(string(outcome))},
			},
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(MetricWebhookLatency),
			Value:      aws.Float64(float64(elapsed.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(DimOutcome), Value: aws.String(string(outcome))},
			},
		},
	)
}

func (m *CloudWatchRecorder) RecordSideEffect(ctx context.Context, kind string, result string) {
	m.put(ctx, "side_effect", cwtypes.MetricDatum{
		MetricName: aws.String(MetricSideEffect),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimKind), Value: aws.String(kind)},
			{Name: aws.String(DimResult), Value: aws.String(result)},
		},
	})
}

func (m *CloudWatchRecorder) put(ctx context.Context, what string, data ...cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metric", "metric", what, "error", err)
	}
}
