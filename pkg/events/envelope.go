package events

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// envelope is the message body on the bus. Payloads that are already JSON
// (backend event frames) are carried as-is.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeEnvelope(name string, payload any) ([]byte, error) {
	if name == "" {
		return nil, errors.New("empty event name")
	}
	env := envelope{Event: name}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		env.Payload = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s payload", name)
		}
		env.Payload = b
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

func decodeEnvelope(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Event{}, errors.Wrap(err, "unmarshal envelope")
	}
	if env.Event == "" {
		return Event{}, errors.New("envelope without event name")
	}
	return Event{Name: env.Event, Payload: env.Payload}, nil
}
