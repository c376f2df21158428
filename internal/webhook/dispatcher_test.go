package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	deposits  []service.DepositInput
	finalized []string
	failed    map[string]string
	err       error
}

func (f *fakeSettler) SettleDeposit(_ context.Context, in service.DepositInput) (repo.Settlement, error) {
	f.deposits = append(f.deposits, in)
	return repo.Settlement{}, f.err
}

func (f *fakeSettler) FinalizeWithdrawal(_ context.Context, ref string, _ time.Time) (repo.Settlement, error) {
	f.finalized = append(f.finalized, ref)
	return repo.Settlement{}, f.err
}

func (f *fakeSettler) FailWithdrawal(_ context.Context, ref string, _ time.Time, reason string) (repo.Settlement, error) {
	if f.failed == nil {
		f.failed = map[string]string{}
	}
	f.failed[ref] = reason
	return repo.Settlement{}, f.err
}

const chargeBody = `{
  "event": "charge.success",
  "data": {
    "reference": "qTPrJoy9Bx",
    "amount": 10000,
    "currency": "NGN",
    "channel": "card",
    "paid_at": "2024-03-08T09:18:00.000Z",
    "customer": {"email": "bettor@example.com"},
    "authorization": {"authorization_code": "AUTH_8dfhjjdt", "last4": "4081", "reusable": true}
  }
}`

func TestDispatch_ChargeSuccess(t *testing.T) {
	f := &fakeSettler{}
	d := NewSettlementDispatcher(f)

	typ, err := d.Dispatch(context.Background(), []byte(chargeBody))
	require.NoError(t, err)
	assert.Equal(t, EventChargeSuccess, typ)
	require.Len(t, f.deposits, 1)

	in := f.deposits[0]
	assert.Equal(t, "bettor@example.com", in.Email)
	assert.Equal(t, "10000", in.Amount.String())
	assert.Equal(t, "qTPrJoy9Bx", in.Reference)
	assert.Equal(t, time.Date(2024, 3, 8, 9, 18, 0, 0, time.UTC), in.PaidAt.UTC())
	require.NotNil(t, in.Authorization)
	assert.Equal(t, "AUTH_8dfhjjdt", in.Authorization.AuthorizationCode)
}

func TestDispatch_Transfers(t *testing.T) {
	f := &fakeSettler{}
	d := NewSettlementDispatcher(f)
	ctx := context.Background()

	_, err := d.Dispatch(ctx, []byte(`{"event":"transfer.success","data":{"reference":"W1","status":"success","updated_at":"2024-03-09T10:00:00.000Z"}}`))
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, []byte(`{"event":"transfer.failed","data":{"reference":"W2","status":"failed","updated_at":"2024-03-09T10:00:00.000Z"}}`))
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, []byte(`{"event":"transfer.reversed","data":{"reference":"W3","reason":"bank timeout","updated_at":"2024-03-09T10:00:00.000Z"}}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"W1"}, f.finalized)
	assert.Equal(t, map[string]string{"W2": "failed", "W3": "bank timeout"}, f.failed)
}

func TestDispatch_UnrecognizedType(t *testing.T) {
	f := &fakeSettler{}
	d := NewSettlementDispatcher(f)

	typ, err := d.Dispatch(context.Background(), []byte(`{"event":"foo.bar","data":{"reference":"X"}}`))
	assert.ErrorIs(t, err, ErrUnrecognizedEventType)
	assert.Equal(t, EventType("foo.bar"), typ)
	assert.Empty(t, f.deposits)
	assert.Empty(t, f.finalized)
}

func TestDispatch_InvalidPayloads(t *testing.T) {
	tests := map[string]string{
		"not json":          `{"event":`,
		"missing event":     `{"data":{}}`,
		"missing data":      `{"event":"charge.success"}`,
		"missing email":     `{"event":"charge.success","data":{"reference":"R","amount":1,"currency":"NGN","paid_at":"2024-03-08T09:18:00Z","customer":{}}}`,
		"bad email":         `{"event":"charge.success","data":{"reference":"R","amount":1,"currency":"NGN","paid_at":"2024-03-08T09:18:00Z","customer":{"email":"nope"}}}`,
		"zero amount":       `{"event":"charge.success","data":{"reference":"R","amount":0,"currency":"NGN","paid_at":"2024-03-08T09:18:00Z","customer":{"email":"a@b.co"}}}`,
		"missing reference": `{"event":"transfer.success","data":{"updated_at":"2024-03-09T10:00:00Z"}}`,
		"missing timestamp": `{"event":"transfer.success","data":{"reference":"W1"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := &fakeSettler{}
			_, err := NewSettlementDispatcher(f).Dispatch(context.Background(), []byte(body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.Empty(t, f.deposits)
			assert.Empty(t, f.finalized)
		})
	}
}

func TestDispatch_HandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	d := NewSettlementDispatcher(&fakeSettler{err: boom})
	_, err := d.Dispatch(context.Background(), []byte(chargeBody))
	assert.ErrorIs(t, err, boom)
}

func TestReference(t *testing.T) {
	assert.Equal(t, "qTPrJoy9Bx", Reference([]byte(chargeBody)))
	assert.Equal(t, "", Reference([]byte("garbage")))
}
