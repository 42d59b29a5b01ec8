package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes events for hand-off to the next step instance.
// Encode failing is what makes a payload "not serializable".
type Codec interface {
	Encode(e Event) ([]byte, error)
	Decode(data []byte) (Event, error)

	// Name returns the codec identifier stored alongside encoded payloads.
	Name() string
}

// Codec names.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec encodes events as JSON objects. Numbers decode as json.Number so
// integer fields survive a round trip without float conversion.
type JSONCodec struct{}

func (JSONCodec) Encode(e Event) ([]byte, error) {
	if e == nil {
		e = Event{}
	}
	return json.Marshal(map[string]any(e))
}

func (JSONCodec) Decode(data []byte) (Event, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Event{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("event: decode json: %w", err)
	}
	if m == nil {
		return Event{}, nil
	}
	return Event(m), nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes events as MessagePack maps.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(e Event) ([]byte, error) {
	if e == nil {
		e = Event{}
	}
	return msgpack.Marshal(map[string]any(e))
}

func (MsgpackCodec) Decode(data []byte) (Event, error) {
	if len(data) == 0 {
		return Event{}, nil
	}
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("event: decode msgpack: %w", err)
	}
	if m == nil {
		return Event{}, nil
	}
	return Event(m), nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
