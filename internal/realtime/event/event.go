// Package event defines the tagged records exchanged with the realtime
// server. An event is a flat JSON object whose "type" member is the dispatch
// key; every other member is payload.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	commonerrors "github.com/AlibekovAA/teamspace-realtime/internal/common/errors"
)

type Event struct {
	Type  Type
	raw   json.RawMessage
	local bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes one inbound frame. Frames that are not JSON objects or carry
// no type tag are rejected.
func Parse(frame []byte) (Event, error) {
	var head struct {
		Type Type `json:"type"`
	}
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Event{}, commonerrors.ErrDecodeFailed.WithCause(fmt.Errorf("frame is not a JSON object"))
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return Event{}, commonerrors.ErrDecodeFailed.WithCause(err)
	}
	if head.Type == "" {
		return Event{}, commonerrors.ErrDecodeFailed.WithCause(fmt.Errorf("missing type tag"))
	}
	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Event{Type: head.Type, raw: raw}, nil
}

// New builds an event of type t whose payload members come from data. data
// may be nil, a struct, or a map; it must marshal to a JSON object.
func New(t Type, data any) (Event, error) {
	if t == "" {
		return Event{}, commonerrors.ErrInvalidEvent.WithCause(fmt.Errorf("empty type tag"))
	}

	fields := map[string]json.RawMessage{}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Event{}, commonerrors.ErrMarshalError.WithCause(err)
		}
		if !bytes.Equal(b, []byte("null")) {
			if err := json.Unmarshal(b, &fields); err != nil {
				return Event{}, commonerrors.ErrInvalidEvent.WithCause(fmt.Errorf("payload must be an object: %w", err))
			}
		}
	}

	tag, _ := json.Marshal(t)
	fields["type"] = tag

	raw, err := json.Marshal(fields)
	if err != nil {
		return Event{}, commonerrors.ErrMarshalError.WithCause(err)
	}
	return Event{Type: t, raw: raw}, nil
}

// NewLocal builds a pseudo-event synthesized by this process. The server may
// send frames with the same type tags; Local tells them apart.
func NewLocal(t Type, data any) (Event, error) {
	ev, err := New(t, data)
	if err != nil {
		return Event{}, err
	}
	ev.local = true
	return ev, nil
}

// NewIntent validates payload before building an outbound event.
func NewIntent(t Type, payload any) (Event, error) {
	if payload != nil {
		if err := validate.Struct(payload); err != nil {
			return Event{}, commonerrors.ErrInvalidEvent.WithCause(err)
		}
	}
	return New(t, payload)
}

func (e Event) Local() bool {
	return e.local
}

// Bytes returns the wire encoding.
func (e Event) Bytes() []byte {
	if len(e.raw) == 0 {
		b, _ := json.Marshal(map[string]Type{"type": e.Type})
		return b
	}
	return e.raw
}

func (e Event) MarshalJSON() ([]byte, error) {
	return e.Bytes(), nil
}

// Decode unmarshals the whole record, type tag included, into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Bytes(), v); err != nil {
		return commonerrors.ErrDecodeFailed.WithCause(err)
	}
	return nil
}

// ChatID reports the chat identifier carried by the event, if any.
func (e Event) ChatID() (int64, bool) {
	var scoped struct {
		ChatID *int64 `json:"chat_id"`
	}
	if err := json.Unmarshal(e.Bytes(), &scoped); err != nil || scoped.ChatID == nil {
		return 0, false
	}
	return *scoped.ChatID, true
}

func (e Event) String() string {
	return string(e.Bytes())
}
