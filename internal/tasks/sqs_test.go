package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSQSSender struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQSSender) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSQSRunner_Submit(t *testing.T) {
	sender := &mockSQSSender{}
	r := NewSQSRunner(sender, "https://sqs.us-east-1.amazonaws.com/123/side-effects", nil)

	task := Task{ID: "t1", Kind: KindPaymentSideEffects, Key: "evt_1", Payload: json.RawMessage(`{"x":1}`)}
	require.NoError(t, r.Submit(context.Background(), task))

	require.Len(t, sender.inputs, 1)
	in := sender.inputs[0]
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/side-effects", aws.ToString(in.QueueUrl))
	assert.Equal(t, string(KindPaymentSideEffects), aws.ToString(in.MessageAttributes["kind"].StringValue))

	var decoded Task
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &decoded))
	assert.Equal(t, "t1", decoded.ID)
	assert.JSONEq(t, `{"x":1}`, string(decoded.Payload))
}

func TestSQSRunner_SubmitError(t *testing.T) {
	r := NewSQSRunner(&mockSQSSender{err: errors.New("throttled")}, "q", nil)
	err := r.Submit(context.Background(), Task{ID: "t1", Kind: KindAdminAlert})
	assert.ErrorContains(t, err, "throttled")
}

func TestWorker_HandleSQS_PartialFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindPaymentSideEffects, func(ctx context.Context, task Task) error {
		switch task.Key {
		case "retry":
			assert.Equal(t, 2, task.Attempt)
			return errors.New("transient")
		case "permanent":
			return Permanent(errors.New("bad"))
		}
		return nil
	})
	w := NewWorker(reg, nil)

	body := func(key string) string {
		b, _ := json.Marshal(Task{ID: key, Kind: KindPaymentSideEffects, Key: key})
		return string(b)
	}
	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: body("ok")},
		{MessageId: "m2", Body: body("retry"), Attributes: map[string]string{"ApproximateReceiveCount": "2"}},
		{MessageId: "m3", Body: body("permanent")},
		{MessageId: "m4", Body: "not json"},
	}}

	resp, err := w.HandleSQS(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []events.SQSBatchItemFailure{{ItemIdentifier: "m2"}}, resp.BatchItemFailures)
}
