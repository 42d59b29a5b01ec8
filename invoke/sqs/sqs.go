// Package sqs implements the wait queue: an SQS queue whose messages carry
// the target step and its payload, delivered after a per-message delay.
//
// A Lambda subscribed to the queue (see the awslambda package) runs the
// target step for each message. SQS caps per-message delay at 15 minutes.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke"
)

var _ invoke.Invoker = (*Invoker)(nil)

// MaxDelay is the longest per-message delay SQS accepts.
const MaxDelay = 15 * time.Minute

// Message attribute carrying the target step, for subscription filtering.
const targetAttribute = "target_step"

// Envelope is the wait queue message body.
type Envelope struct {
	TargetStep string          `json:"target_step"`
	Payload    json.RawMessage `json:"payload"`
}

// API is the subset of the SQS client used by Invoker.
type API interface {
	SendMessage(ctx context.Context, in *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// Invoker implements invoke.Invoker by sending envelopes to a queue.
type Invoker struct {
	client   API
	queueURL string
	codec    event.JSONCodec
	logger   *slog.Logger
}

// New creates a wait queue invoker for queueURL.
func New(client API, queueURL string, opts ...Option) *Invoker {
	i := &Invoker{
		client:   client,
		queueURL: queueURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InvokeAsync sends an envelope with no delay.
func (i *Invoker) InvokeAsync(ctx context.Context, step string, payload event.Event) error {
	return i.InvokeDelayed(ctx, step, payload, 0)
}

// InvokeDelayed sends an envelope delivered after delay, rounded up to the
// second.
func (i *Invoker) InvokeDelayed(ctx context.Context, step string, payload event.Event, delay time.Duration) error {
	if delay < 0 || delay > MaxDelay {
		return stepchain.NewConfigError(step, fmt.Errorf("wait queue delay %s outside [0, %s]", delay, MaxDelay))
	}
	if i.queueURL == "" {
		return stepchain.NewConfigError(step, errors.New("wait queue URL not configured"))
	}

	body, err := EncodeEnvelope(step, payload)
	if err != nil {
		return &stepchain.SerializationError{Step: step, Err: err}
	}

	in := &awssqs.SendMessageInput{
		QueueUrl:     aws.String(i.queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: int32(math.Ceil(delay.Seconds())),
		MessageAttributes: map[string]types.MessageAttributeValue{
			targetAttribute: {DataType: aws.String("String"), StringValue: aws.String(step)},
		},
	}
	out, err := i.client.SendMessage(ctx, in)
	if err != nil {
		return fmt.Errorf("stepchain/sqs: send message: %w", err)
	}

	i.logger.Debug("wait queue message sent",
		slog.String("step", step),
		slog.String("message_id", aws.ToString(out.MessageId)),
		slog.Duration("delay", delay),
	)
	return nil
}

// ErrMissingIterationCount is returned for a legacy message that carries no
// iteration_count.
var ErrMissingIterationCount = errors.New("stepchain/sqs: legacy message has no iteration_count")

// EncodeEnvelope returns the message body for step and payload.
func EncodeEnvelope(step string, payload event.Event) ([]byte, error) {
	data, err := event.JSONCodec{}.Encode(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{TargetStep: step, Payload: data})
}

// DecodeEnvelope parses a message body into its target step and payload.
//
// Besides the envelope it accepts the legacy flat shape
// {"target_lambda": "<step>", "iteration_count": N, ...}, where every field
// other than target_lambda is payload. Legacy messages were only ever sent
// for repeats, so one without iteration_count is rejected with
// ErrMissingIterationCount rather than restarting the repeat bound.
func DecodeEnvelope(body []byte) (string, event.Event, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", nil, fmt.Errorf("stepchain/sqs: decode message: %w", err)
	}

	if t, ok := raw["target_step"]; ok {
		var target string
		if err := json.Unmarshal(t, &target); err != nil {
			return "", nil, fmt.Errorf("stepchain/sqs: decode target_step: %w", err)
		}
		evt, err := event.JSONCodec{}.Decode(raw["payload"])
		if err != nil {
			return "", nil, err
		}
		return target, evt, nil
	}

	if _, ok := raw["target_lambda"]; ok {
		evt, err := event.JSONCodec{}.Decode(body)
		if err != nil {
			return "", nil, err
		}
		target, ok := evt["target_lambda"].(string)
		if !ok {
			return "", nil, errors.New("stepchain/sqs: target_lambda must be a string")
		}
		if _, ok := evt[event.IterationCountKey]; !ok {
			return "", nil, ErrMissingIterationCount
		}
		delete(evt, "target_lambda")
		return target, evt, nil
	}

	return "", nil, errors.New("stepchain/sqs: message has no target_step")
}

