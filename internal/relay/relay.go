package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"go.uber.org/zap"
)

// Outbox is the part of the ledger store the relay drains.
type Outbox interface {
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	MarkOutboxProcessed(ctx context.Context, id uint64) error
}

// Relay publishes outbox rows to Kafka in insertion order.
type Relay struct {
	outbox Outbox
	batch  int
	log    *zap.SugaredLogger
}

func New(o Outbox, batch int, log *zap.SugaredLogger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: o, batch: batch, log: log}
}

// RunOnce relays one batch and returns how many events were published.
// It stops at the first publish failure so later events are not sent ahead
// of an earlier one.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.PollOutbox(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("poll outbox: %w", err)
	}
	sent := 0
	for _, evt := range events {
		if err := r.outbox.PublishEvent(ctx, evt); err != nil {
			r.log.Errorw("publish outbox event", "id", evt.ID, "type", evt.EventType, "error", err)
			return sent, err
		}
		if err := r.outbox.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			// published but not marked: the event goes out again next tick
			r.log.Errorw("mark outbox event processed", "id", evt.ID, "error", err)
			return sent, err
		}
		sent++
		r.log.Debugw("outbox event sent", "id", evt.ID, "type", evt.EventType)
	}
	return sent, nil
}

// Run relays on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				r.log.Errorw("relay outbox", "sent", n, "error", err)
				continue
			}
			if n > 0 {
				r.log.Infow("outbox relayed", "count", n)
			}
		}
	}
}
