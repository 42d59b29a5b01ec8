package step

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xraph/stepchain"
	"github.com/xraph/stepchain/event"
)

// Bind adapts a handler over a typed input. The incoming event is converted
// to T through JSON before fn runs; a conversion failure is reported as a
// SerializationError and fn is not called.
//
// iteration_count is available to T like any other field.
func Bind[T any](name string, fn func(ctx context.Context, in T) (Result, error)) HandlerFunc {
	return func(ctx context.Context, evt event.Event) (Result, error) {
		var in T
		if len(evt) > 0 {
			data, err := json.Marshal(map[string]any(evt))
			if err != nil {
				return Result{}, &stepchain.SerializationError{Step: name, Err: err}
			}
			if err := json.Unmarshal(data, &in); err != nil {
				return Result{}, &stepchain.SerializationError{
					Step: name,
					Err:  fmt.Errorf("decode event into %T: %w", in, err),
				}
			}
		}
		return fn(ctx, in)
	}
}
