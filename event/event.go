// Package event defines the payload threaded between step instances.
//
// An Event is a JSON-compatible map. Its fields belong to the handlers that
// produce and consume them, with one exception: iteration_count, which the
// runner reads to bound self-invocation chains and rewrites on every repeat.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
)

// IterationCountKey is the reserved field counting consecutive repeats.
const IterationCountKey = "iteration_count"

// ErrInvalidIterationCount is returned when iteration_count is present but is
// not a non-negative integer.
var ErrInvalidIterationCount = errors.New("event: iteration_count must be a non-negative integer")

// Event is the payload delivered to a step.
type Event map[string]any

// IterationCount returns the reserved iteration_count field, or 0 when it is
// absent or null.
func (e Event) IterationCount() (int, error) {
	v, ok := e[IterationCountKey]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidIterationCount, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidIterationCount, n)
	}
	return n, nil
}

// WithIterationCount returns a copy of e with iteration_count set to n.
// The receiver is not modified.
func (e Event) WithIterationCount(n int) Event {
	out := e.Clone()
	out[IterationCountKey] = n
	return out
}

// Clone returns a shallow copy of e. A nil Event clones to an empty one.
func (e Event) Clone() Event {
	if e == nil {
		return Event{}
	}
	return maps.Clone(e)
}

// String returns the value of a string field, or "" when it is absent or of
// another type.
func (e Event) String(key string) string {
	s, _ := e[key].(string) //nolint:errcheck // absent and mistyped both read as ""
	return s
}

// Require returns the string field key or an error naming the missing field.
func (e Event) Require(key string) (string, error) {
	s := e.String(key)
	if s == "" {
		return "", fmt.Errorf("event must contain %q field", key)
	}
	return s, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint:
		return intFromUint(uint64(n))
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return intFromUint(n)
	case float32:
		return intFromFloat(float64(n))
	case float64:
		return intFromFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, err
		}
		return intFromFloat(f)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func intFromUint(n uint64) (int, error) {
	if n > math.MaxInt {
		return 0, fmt.Errorf("%d overflows int", n)
	}
	return int(n), nil
}

func intFromFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || f > math.MaxInt || f < math.MinInt {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int(f), nil
}
