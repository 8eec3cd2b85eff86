// Package bus carries request/response traffic between UI contexts and the
// background process. Many logical actions share one connection; each
// request carries an id and its reply is routed back by that id.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/Cyvadra/marketminds/internal/models"
)

// Envelope is a request frame. On the wire the payload fields sit next to
// id and action: {"id":..., "action":..., ...payload}.
type Envelope struct {
	ID      string
	Action  models.Action
	Payload json.RawMessage
}

// Reply is a response frame
type Reply struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(e.Payload) > 0 && string(e.Payload) != "null" {
		if err := json.Unmarshal(e.Payload, &fields); err != nil {
			return nil, fmt.Errorf("%w: payload must be an object: %v", ErrInvalidFrame, err)
		}
	}

	id, err := json.Marshal(e.ID)
	if err != nil {
		return nil, err
	}
	action, err := json.Marshal(e.Action)
	if err != nil {
		return nil, err
	}
	fields["id"] = id
	fields["action"] = action
	return json.Marshal(fields)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: frame is null", ErrInvalidFrame)
	}

	var env Envelope
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &env.ID); err != nil {
			return fmt.Errorf("%w: id: %v", ErrInvalidFrame, err)
		}
	}
	if raw, ok := fields["action"]; ok {
		if err := json.Unmarshal(raw, &env.Action); err != nil {
			return fmt.Errorf("%w: action: %v", ErrInvalidFrame, err)
		}
	}
	if env.Action == "" {
		return fmt.Errorf("%w: action is required", ErrInvalidFrame)
	}
	delete(fields, "id")
	delete(fields, "action")

	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	env.Payload = payload
	*e = env
	return nil
}

// NewEnvelope encodes payload as the body of a request for action
func NewEnvelope(id string, action models.Action, payload any) (Envelope, error) {
	env := Envelope{ID: id, Action: action}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("failed to encode %s payload: %w", action, err)
	}
	env.Payload = data
	return env, nil
}

func successReply(id string, data any) Reply {
	raw, err := json.Marshal(data)
	if err != nil {
		return failureReply(id, fmt.Errorf("failed to encode result: %w", err))
	}
	return Reply{ID: id, Success: true, Data: raw}
}

func failureReply(id string, err error) Reply {
	return Reply{ID: id, Success: false, Error: err.Error()}
}
