package lambda_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
	"github.com/xraph/stepchain/invoke/lambda"
)

type fakeLambda struct {
	inputs []*awslambda.InvokeInput
	out    *awslambda.InvokeOutput
	err    error
}

func (f *fakeLambda) Invoke(_ context.Context, in *awslambda.InvokeInput, _ ...func(*awslambda.Options)) (*awslambda.InvokeOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	return &awslambda.InvokeOutput{StatusCode: 202}, nil
}

func TestInvokeAsync(t *testing.T) {
	fake := &fakeLambda{}
	inv := lambda.New(fake,
		lambda.WithFunctionPrefix("volume-"),
		lambda.WithFunctionName("cleanup", "arn:aws:lambda:us-east-1:123:function:cleanup"),
		lambda.WithQualifier("live"),
	)
	ctx := context.Background()

	if err := inv.InvokeAsync(ctx, "wait_created", event.Event{"volume_id": "v-1"}); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}
	if err := inv.InvokeAsync(ctx, "cleanup", event.Event{}); err != nil {
		t.Fatalf("InvokeAsync: %v", err)
	}

	if len(fake.inputs) != 2 {
		t.Fatalf("expected 2 invokes, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if aws.ToString(in.FunctionName) != "volume-wait_created" {
		t.Errorf("FunctionName = %q", aws.ToString(in.FunctionName))
	}
	if in.InvocationType != types.InvocationTypeEvent {
		t.Errorf("InvocationType = %q", in.InvocationType)
	}
	if aws.ToString(in.Qualifier) != "live" {
		t.Errorf("Qualifier = %q", aws.ToString(in.Qualifier))
	}
	var payload map[string]any
	if err := json.Unmarshal(in.Payload, &payload); err != nil || payload["volume_id"] != "v-1" {
		t.Errorf("payload = %s (%v)", in.Payload, err)
	}
	if got := aws.ToString(fake.inputs[1].FunctionName); got != "arn:aws:lambda:us-east-1:123:function:cleanup" {
		t.Errorf("mapped FunctionName = %q", got)
	}
}

func TestInvokeAsync_Failures(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeLambda
	}{
		{"transport", &fakeLambda{err: errors.New("connection reset")}},
		{"function error", &fakeLambda{out: &awslambda.InvokeOutput{StatusCode: 202, FunctionError: aws.String("Unhandled")}}},
		{"status", &fakeLambda{out: &awslambda.InvokeOutput{StatusCode: 200}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lambda.New(tt.fake).InvokeAsync(context.Background(), "s", event.Event{})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestInvokeAsync_Unserializable(t *testing.T) {
	fake := &fakeLambda{}
	err := lambda.New(fake).InvokeAsync(context.Background(), "s", event.Event{"ch": make(chan int)})
	if !errors.Is(err, stepchain.ErrSerialization) {
		t.Fatalf("expected ErrSerialization, got %v", err)
	}
	if len(fake.inputs) != 0 {
		t.Error("unserializable payload must not be sent")
	}
}

func TestInvokeDelayed(t *testing.T) {
	fake := &fakeLambda{}
	inv := lambda.New(fake)

	if err := inv.InvokeDelayed(context.Background(), "s", event.Event{}, time.Second); !errors.Is(err, stepchain.ErrDelayUnsupported) {
		t.Fatalf("expected ErrDelayUnsupported, got %v", err)
	}
	if err := inv.InvokeDelayed(context.Background(), "s", event.Event{}, 0); err != nil {
		t.Fatalf("zero delay: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Errorf("expected 1 invoke, got %d", len(fake.inputs))
	}
}
