package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnrecognizedEventType is acknowledged without touching the ledger.
	ErrUnrecognizedEventType = errors.New("unrecognized event type")
	// ErrInvalidPayload means a known event arrived without its required fields.
	ErrInvalidPayload = errors.New("invalid event payload")
)

// EventType is the provider's event label.
type EventType string

const (
	EventChargeSuccess    EventType = "charge.success"
	EventTransferSuccess  EventType = "transfer.success"
	EventTransferFailed   EventType = "transfer.failed"
	EventTransferReversed EventType = "transfer.reversed"
)

// Envelope is the outer shape of every provider callback.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Payload is one decoded event variant.
type Payload interface {
	Validate() error
}

type Customer struct {
	Email string `json:"email" binding:"required,email"`
}

// ChargeSuccess is the data of a charge.success event.
type ChargeSuccess struct {
	Reference     string               `json:"reference" binding:"required"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency" binding:"required"`
	Channel       string               `json:"channel"`
	PaidAt        time.Time            `json:"paid_at" binding:"required"`
	Customer      Customer             `json:"customer"`
	Authorization *model.Authorization `json:"authorization"`
}

func (c ChargeSuccess) Validate() error {
	if err := binding.Validator.ValidateStruct(&c); err != nil {
		return err
	}
	if !c.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	return nil
}

// Transfer is the data of transfer.success, transfer.failed and transfer.reversed.
type Transfer struct {
	Reference string    `json:"reference" binding:"required"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	UpdatedAt time.Time `json:"updated_at" binding:"required"`
}

func (t Transfer) Validate() error {
	return binding.Validator.ValidateStruct(&t)
}

func decodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrInvalidPayload)
	}
	return env, nil
}

func decodePayload[P Payload](raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}
