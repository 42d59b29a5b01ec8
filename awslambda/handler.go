package awslambda

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke/sqs"
	"github.com/xraph/stepchain/runner"
)

// Option configures the handlers.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	dropPermanent bool
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDropPermanent makes SQSHandler delete records that failed with a
// permanent error instead of reporting them for redelivery.
func WithDropPermanent() Option {
	return func(o *options) { o.dropPermanent = true }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Handler returns a Lambda handler that runs r once per invocation.
//
// The payload is the event. A wait queue envelope delivered directly is
// unwrapped, and one addressed to another step is ignored.
func Handler(r *runner.Runner, opts ...Option) func(context.Context, json.RawMessage) error {
	o := buildOptions(opts)

	return func(ctx context.Context, payload json.RawMessage) error {
		evt, target, err := decodePayload(payload)
		if err != nil {
			return &stepchain.SerializationError{Step: r.Name(), Err: err}
		}
		if target != "" && target != r.Name() {
			o.logger.Debug("event addressed to another step, skipping",
				slog.String("step", r.Name()),
				slog.String("target", target),
			)
			return nil
		}

		_, err = r.Execute(ctx, evt)
		return err
	}
}

// decodePayload returns the event and, for envelopes, the target step.
func decodePayload(payload json.RawMessage) (event.Event, string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err == nil {
		_, wrapped := fields["target_step"]
		_, legacy := fields["target_lambda"]
		if wrapped || legacy {
			target, evt, err := sqs.DecodeEnvelope(payload)
			return evt, target, err
		}
	}

	evt, err := event.JSONCodec{}.Decode(payload)
	return evt, "", err
}

// SQSHandler returns a Lambda handler for wait queue batches.
//
// Records for other steps are skipped. Failed records are returned as batch
// item failures so SQS redelivers only those; the function must enable
// ReportBatchItemFailures on its event source mapping.
func SQSHandler(r *runner.Runner, opts ...Option) func(context.Context, events.SQSEvent) (events.SQSEventResponse, error) {
	o := buildOptions(opts)

	return func(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
		var resp events.SQSEventResponse

		for _, rec := range batch.Records {
			err := handleRecord(ctx, r, o, rec)
			if err == nil {
				continue
			}

			if o.dropPermanent && stepchain.IsPermanent(err) {
				o.logger.Error("dropping wait queue message",
					slog.String("step", r.Name()),
					slog.String("message_id", rec.MessageId),
					slog.String("error", err.Error()),
				)
				continue
			}

			o.logger.Warn("wait queue message failed",
				slog.String("step", r.Name()),
				slog.String("message_id", rec.MessageId),
				slog.String("error", err.Error()),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}

		return resp, nil
	}
}

func handleRecord(ctx context.Context, r *runner.Runner, o options, rec events.SQSMessage) error {
	target, evt, err := sqs.DecodeEnvelope([]byte(rec.Body))
	if err != nil {
		return &stepchain.SerializationError{Step: r.Name(), Err: err}
	}
	if target != r.Name() {
		o.logger.Debug("message addressed to another step, skipping",
			slog.String("step", r.Name()),
			slog.String("target", target),
			slog.String("message_id", rec.MessageId),
		)
		return nil
	}

	_, err = r.Execute(ctx, evt)
	return err
}

// Start runs r as a directly invoked Lambda function. It does not return.
func Start(r *runner.Runner, opts ...Option) {
	lambda.Start(Handler(r, opts...))
}

// StartSQS runs r as a Lambda function fed by the wait queue. It does not
// return.
func StartSQS(r *runner.Runner, opts ...Option) {
	lambda.Start(SQSHandler(r, opts...))
}
