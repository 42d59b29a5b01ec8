// Package id defines the identifiers stepchain hands out.
//
// Deliveries, invocations and workers are named by TypeIDs such as
// "dlv_01h2xcejqtf2nbrexx3vqjhp41": a short prefix naming the entity, then a
// K-sortable UUIDv7 suffix. The text form is what travels through stores,
// queues and logs, so an ID holds its canonical string and compares with ==.
package id

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"go.jetify.com/typeid/v2"
)

// Prefix names the entity an ID belongs to.
type Prefix string

const (
	PrefixDelivery   Prefix = "dlv"
	PrefixInvocation Prefix = "inv"
	PrefixWorker     Prefix = "wkr"
)

// ErrEmpty is returned when parsing an empty string.
var ErrEmpty = errors.New("id: empty string")

// ID is a prefixed TypeID. The zero value is Nil.
//
//nolint:recvcheck // UnmarshalText and Scan need pointer receivers.
type ID struct {
	s string
}

// Nil is the zero ID. It encodes as the empty string and as SQL NULL.
var Nil ID

// DeliveryID names a scheduled trigger held by a store.
type DeliveryID = ID

// InvocationID names one execution of a step.
type InvocationID = ID

// WorkerID names a worker pool.
type WorkerID = ID

// New returns a fresh ID with prefix. An invalid prefix is a programming
// error and panics.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: generate with prefix %q: %v", prefix, err))
	}
	return ID{s: tid.String()}
}

func NewDeliveryID() ID   { return New(PrefixDelivery) }
func NewInvocationID() ID { return New(PrefixInvocation) }
func NewWorkerID() ID     { return New(PrefixWorker) }

// Parse validates s as a TypeID of any prefix.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, ErrEmpty
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{s: tid.String()}, nil
}

// ParseWithPrefix is Parse restricted to one entity type.
func ParseWithPrefix(s string, want Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if got := parsed.Prefix(); got != want {
		return Nil, fmt.Errorf("id: %q has prefix %q, want %q", s, got, want)
	}
	return parsed, nil
}

func ParseDeliveryID(s string) (ID, error)   { return ParseWithPrefix(s, PrefixDelivery) }
func ParseInvocationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixInvocation) }
func ParseWorkerID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixWorker) }

// String returns the TypeID text, or "" for Nil.
func (i ID) String() string { return i.s }

// Prefix returns the entity prefix, or "" for Nil.
func (i ID) Prefix() Prefix {
	if p, _, ok := strings.Cut(i.s, "_"); ok {
		return Prefix(p)
	}
	return ""
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return i.s == "" }

func (i ID) MarshalText() ([]byte, error) { return []byte(i.s), nil }

func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value stores Nil as NULL.
func (i ID) Value() (driver.Value, error) {
	if i.IsNil() {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.s, nil
}

func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T", src)
	}
}
