package service

import (
	"context"

	"github.com/richardliu001/tipster-ledger/internal/model"
)

// Alert is an operator-visible settlement problem. The event was acknowledged
// to the provider, so nothing will retry it on its own.
type Alert struct {
	Kind      string `json:"kind"`
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Detail    string `json:"detail"`
}

// RecordAlert logs the alert and queues it on the outbox for the alerting consumer.
// It still writes when ctx has expired, since a timeout is itself worth reporting.
func (s *LedgerService) RecordAlert(ctx context.Context, a Alert) {
	s.log.Errorw("settlement alert",
		"kind", a.Kind, "event", a.Event, "reference", a.Reference, "detail", a.Detail)
	if err := s.repo.AppendOutbox(context.WithoutCancel(ctx), model.EventSettlementAlert, 0, a); err != nil {
		s.log.Errorw("queue settlement alert", "kind", a.Kind, "reference", a.Reference, "error", err)
	}
}
