package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"kakioki/internal/domain"
)

// ErrUnknownEvent is returned for payloads with an unrecognised type tag.
var ErrUnknownEvent = errors.New("unknown event type")

// DecodeEvent parses a realtime payload into MessageEvent, StatusEvent or
// ControlEvent according to its type tag.
func DecodeEvent(payload []byte) (domain.Event, error) {
	var head struct {
		Type domain.EventType `json:"type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch head.Type {
	case domain.EventMessage:
		var e domain.MessageEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return e, nil
	case domain.EventStatus:
		var e domain.StatusEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return e, nil
	case domain.EventBlock, domain.EventUnblock, domain.EventRemoved:
		var e domain.ControlEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, head.Type)
}
