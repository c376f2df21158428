package webhook

import (
	"context"
	"encoding/json"
	"fmt"
)

type route struct {
	decode func(json.RawMessage) (Payload, error)
	handle func(context.Context, Payload) error
}

// Dispatcher routes a verified event to the handler registered for its type.
type Dispatcher struct {
	routes map[EventType]route
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{routes: make(map[EventType]route)}
}

// Handle registers h for events of type t. The payload is decoded into P and
// validated before h runs.
func Handle[P Payload](d *Dispatcher, t EventType, h func(context.Context, P) error) {
	d.routes[t] = route{
		decode: func(raw json.RawMessage) (Payload, error) {
			p, err := decodePayload[P](raw)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		handle: func(ctx context.Context, p Payload) error { return h(ctx, p.(P)) },
	}
}

// Dispatch decodes body and runs the matching handler. It returns the event
// type it saw so callers can log it even on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (EventType, error) {
	env, err := decodeEnvelope(body)
	if err != nil {
		return "", err
	}
	r, ok := d.routes[env.Event]
	if !ok {
		return env.Event, fmt.Errorf("%w: %s", ErrUnrecognizedEventType, env.Event)
	}
	p, err := r.decode(env.Data)
	if err != nil {
		return env.Event, err
	}
	return env.Event, r.handle(ctx, p)
}

// Reference extracts data.reference from a raw event for alerting. It returns
// "" when the body does not carry one.
func Reference(body []byte) string {
	var v struct {
		Data struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return ""
	}
	return v.Data.Reference
}
