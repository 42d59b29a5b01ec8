// Package lambda triggers steps deployed as AWS Lambda functions.
//
// Each step is a function. InvokeAsync uses the Event invocation type, so
// Lambda queues the request and returns 202 without waiting for the step.
// Lambda has no native delayed invoke; pair this invoker with the sqs
// package through invoke.Split for Repeat.
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	inv := lambda.New(awslambda.NewFromConfig(cfg), lambda.WithFunctionPrefix("volume-"))
package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke"
)

var _ invoke.Invoker = (*Invoker)(nil)

// API is the subset of the Lambda client used by Invoker.
type API interface {
	Invoke(ctx context.Context, in *awslambda.InvokeInput, optFns ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error)
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithFunctionPrefix prepends prefix to step names to form function names.
func WithFunctionPrefix(prefix string) Option {
	return func(i *Invoker) { i.prefix = prefix }
}

// WithFunctionName maps one step to an explicit function name or ARN.
func WithFunctionName(step, function string) Option {
	return func(i *Invoker) { i.functions[step] = function }
}

// WithQualifier targets a version or alias of every function.
func WithQualifier(q string) Option {
	return func(i *Invoker) { i.qualifier = q }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) { i.logger = l }
}

// Invoker implements invoke.Invoker with asynchronous Lambda invocations.
type Invoker struct {
	client    API
	codec     event.JSONCodec
	prefix    string
	qualifier string
	functions map[string]string
	logger    *slog.Logger
}

// New creates a Lambda invoker.
func New(client API, opts ...Option) *Invoker {
	i := &Invoker{
		client:    client,
		functions: make(map[string]string),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// FunctionName returns the function a step is deployed as.
func (i *Invoker) FunctionName(step string) string {
	if fn, ok := i.functions[step]; ok {
		return fn
	}
	return i.prefix + step
}

// InvokeAsync queues an Event invocation of the step's function.
func (i *Invoker) InvokeAsync(ctx context.Context, step string, payload event.Event) error {
	data, err := i.codec.Encode(payload)
	if err != nil {
		return &stepchain.SerializationError{Step: step, Err: err}
	}

	in := &awslambda.InvokeInput{
		FunctionName:   aws.String(i.FunctionName(step)),
		InvocationType: types.InvocationTypeEvent,
		Payload:        data,
	}
	if i.qualifier != "" {
		in.Qualifier = aws.String(i.qualifier)
	}

	out, err := i.client.Invoke(ctx, in)
	if err != nil {
		return fmt.Errorf("stepchain/lambda: invoke %s: %w", aws.ToString(in.FunctionName), err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("stepchain/lambda: invoke %s: function error %s",
			aws.ToString(in.FunctionName), aws.ToString(out.FunctionError))
	}
	if out.StatusCode != http.StatusAccepted {
		return fmt.Errorf("stepchain/lambda: invoke %s: unexpected status %d",
			aws.ToString(in.FunctionName), out.StatusCode)
	}

	i.logger.Debug("lambda invoked",
		slog.String("step", step),
		slog.String("function", aws.ToString(in.FunctionName)),
	)
	return nil
}

// InvokeDelayed supports only a zero delay.
func (i *Invoker) InvokeDelayed(ctx context.Context, step string, payload event.Event, delay time.Duration) error {
	if delay > 0 {
		return fmt.Errorf("stepchain/lambda: %w: %s", stepchain.ErrDelayUnsupported, delay)
	}
	return i.InvokeAsync(ctx, step, payload)
}
