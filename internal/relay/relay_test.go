package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/richardliu001/tipster-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type brokenOutbox struct{}

func (brokenOutbox) PollOutbox(context.Context, int) ([]model.OutboxEvent, error) {
	return nil, errors.New("connection refused")
}
func (brokenOutbox) PublishEvent(context.Context, model.OutboxEvent) error { return nil }
func (brokenOutbox) MarkOutboxProcessed(context.Context, uint64) error     { return nil }

func TestRunOnce_PublishesInOrder(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	require.NoError(t, s.Repo.AppendOutbox(ctx, model.EventDepositSettled, 1, map[string]string{"reference": "R1"}))
	require.NoError(t, s.Repo.AppendOutbox(ctx, model.EventSettlementAlert, 0, map[string]string{"reference": "R2"}))

	r := New(s.Repo, 10, zap.NewNop().Sugar())
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, s.Writer.Msgs, 2)
	assert.Equal(t, "1", string(s.Writer.Msgs[0].Key))
	assert.JSONEq(t, `{"reference":"R1"}`, string(s.Writer.Msgs[0].Value))
	assert.Equal(t, model.EventSettlementAlert, string(s.Writer.Msgs[1].Headers[0].Value))

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "processed events are not resent")
}

func TestRunOnce_StopsOnPublishError(t *testing.T) {
	s := testutil.NewStore(t)
	ctx := context.Background()
	require.NoError(t, s.Repo.AppendOutbox(ctx, model.EventDepositSettled, 1, map[string]string{"reference": "R1"}))
	s.Writer.Err = errors.New("broker down")

	r := New(s.Repo, 10, zap.NewNop().Sugar())
	_, err := r.RunOnce(ctx)
	assert.Error(t, err)

	pending, err := s.Repo.PollOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	s.Writer.Err = nil
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_LogsPollFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := New(brokenOutbox{}, 10, zap.New(core).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		return logs.FilterMessage("relay outbox").Len() > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	entry := logs.FilterMessage("relay outbox").All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Contains(t, entry.ContextMap()["error"], "poll outbox: connection refused")
}
