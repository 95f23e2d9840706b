package protocol

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

var (
	// ErrMalformed is returned for frames that are not a valid envelope or
	// whose payload cannot be coerced into the event's fields.
	ErrMalformed = errors.New("malformed event")
	// ErrUnknownEvent is returned for envelopes naming an event outside the
	// protocol.
	ErrUnknownEvent = errors.New("unknown event")
)

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outboundEnvelope struct {
	Event string   `json:"event"`
	Data  Outbound `json:"data"`
}

// Decode parses one inbound frame into a typed request. Scalar payload fields
// are coerced to strings and missing fields stay empty.
func Decode(raw []byte) (Request, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	var req Request
	switch env.Event {
	case EventCreateRoom:
		var r CreateRoom
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	case EventJoinRoom:
		var r JoinRoom
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	case EventSendMessage:
		var r SendMessage
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	case EventLeaveRoom:
		var r LeaveRoom
		if err := decodeData(env.Data, &r); err != nil {
			return nil, err
		}
		req = r
	case EventGetRooms:
		req = GetRooms{}
	case "":
		return nil, errors.Wrap(ErrMalformed, "missing event name")
	default:
		return nil, errors.Wrapf(ErrUnknownEvent, "%q", env.Event)
	}
	return req, nil
}

func decodeData(data json.RawMessage, out any) error {
	fields := map[string]any{}
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return errors.Wrap(ErrMalformed, "data must be an object")
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return errors.Wrap(err, "build payload decoder")
	}
	if err := dec.Decode(fields); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	return nil
}

// Encode renders an outbound event as one envelope frame.
func Encode(ev Outbound) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("nil event")
	}
	b, err := json.Marshal(outboundEnvelope{Event: ev.EventName(), Data: ev})
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", ev.EventName())
	}
	return b, nil
}
