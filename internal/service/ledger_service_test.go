package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*LedgerService, *testutil.Store, context.Context) {
	s := testutil.NewStore(t)
	svc := NewLedgerService(s.Repo, zap.NewNop().Sugar(), Options{PaymentIssuer: testutil.Issuer, AuthorizationCapacity: 5})
	return svc, s, context.Background()
}

func charge(email, ref string, amount int64) DepositInput {
	return DepositInput{
		Email: email, Amount: decimal.NewFromInt(amount), Currency: "NGN", Channel: "card",
		Reference: ref, PaidAt: time.Date(2024, 3, 8, 9, 18, 0, 0, time.UTC),
		Authorization: &model.Authorization{AuthorizationCode: "AUTH_" + ref, Reusable: true},
	}
}

func TestSettleDeposit_Idempotent(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")

	first, err := svc.SettleDeposit(ctx, charge("bettor@example.com", "R1", 1000))
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := svc.SettleDeposit(ctx, charge("bettor@example.com", "R1", 1000))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.True(t, s.Balance(t, acct.ID).Equal(decimal.NewFromInt(1000)))
	assert.EqualValues(t, 1, s.CountTransactions(t, "R1"))

	bal, err := svc.GetBalance(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.String())
}

func TestSettleDeposit_AuthorizationEviction(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")

	for i := 1; i <= 5; i++ {
		_, err := svc.SettleDeposit(ctx, charge("bettor@example.com", fmt.Sprintf("R%d", i), 10))
		require.NoError(t, err)
	}
	_, err := svc.SettleDeposit(ctx, charge("bettor@example.com", "R6", 10))
	require.NoError(t, err)

	w, err := svc.GetWallet(ctx, acct.ID)
	require.NoError(t, err)
	var got []string
	for _, a := range w.Authorizations {
		got = append(got, a.AuthorizationCode)
	}
	assert.Equal(t, []string{"AUTH_R6", "AUTH_R5", "AUTH_R4", "AUTH_R3", "AUTH_R2"}, got)
}

func TestSettleDeposit_Rejections(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")

	_, err := svc.SettleDeposit(ctx, charge("stranger@example.com", "R1", 100))
	assert.ErrorIs(t, err, repo.ErrAccountNotFound)

	in := charge("bettor@example.com", "R2", 100)
	in.Currency = "XYZ"
	_, err = svc.SettleDeposit(ctx, in)
	assert.ErrorIs(t, err, repo.ErrUnknownCurrency)

	_, err = svc.SettleDeposit(ctx, charge("bettor@example.com", "R3", 0))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.True(t, s.Balance(t, acct.ID).IsZero())
	assert.Zero(t, s.CountTransactions(t, ""))
}

func TestBalanceInvariant(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")
	s.SeedBalance(t, acct.ID, decimal.NewFromInt(5000))

	// P=3 withdrawals reserved up front, debiting 600 in total.
	var pending []*model.Transaction
	for _, amt := range []int64{100, 200, 300} {
		tx, err := svc.InitiateWithdrawal(ctx, WithdrawalInput{AccountID: acct.ID, Amount: decimal.NewFromInt(amt)})
		require.NoError(t, err)
		pending = append(pending, tx)
	}
	initial := s.Balance(t, acct.ID)
	require.True(t, initial.Equal(decimal.NewFromInt(4400)))

	deposits := []int64{250, 1000, 75, 40}
	sum := decimal.Zero
	for i, amt := range deposits {
		_, err := svc.SettleDeposit(ctx, charge("bettor@example.com", fmt.Sprintf("D%d", i), amt))
		require.NoError(t, err)
		sum = sum.Add(decimal.NewFromInt(amt))
	}
	// M=2 of the 3 complete.
	for _, tx := range pending[:2] {
		_, err := svc.FinalizeWithdrawal(ctx, tx.Reference, time.Now())
		require.NoError(t, err)
	}

	assert.True(t, s.Balance(t, acct.ID).Equal(initial.Add(sum)))

	hist, err := svc.GetHistory(ctx, acct.ID, 0, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, hist, 7)
	statuses := map[model.TransactionStatus]int{}
	for _, h := range hist {
		statuses[h.Status]++
	}
	assert.Equal(t, 6, statuses[model.StatusSucceeded])
	assert.Equal(t, 1, statuses[model.StatusPending])
}

func TestSettleDeposit_ConcurrentDuplicateDelivery(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")

	const deliveries = 2
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	dups := make([]bool, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.SettleDeposit(ctx, charge("bettor@example.com", "R123", 1000))
			errs[i], dups[i] = err, res.Duplicate
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, []bool{false, true}, dups)
	assert.EqualValues(t, 1, s.CountTransactions(t, "R123"))
	assert.True(t, s.Balance(t, acct.ID).Equal(decimal.NewFromInt(1000)))
}

func TestWithdrawal_FailRefunds(t *testing.T) {
	svc, s, ctx := newTestService(t)
	acct := s.Account(t, 1, "bettor@example.com")
	s.SeedBalance(t, acct.ID, decimal.NewFromInt(800))

	_, err := svc.InitiateWithdrawal(ctx, WithdrawalInput{AccountID: acct.ID, Amount: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.InitiateWithdrawal(ctx, WithdrawalInput{AccountID: acct.ID, Amount: decimal.NewFromInt(900)})
	assert.ErrorIs(t, err, repo.ErrInsufficientFunds)

	tx, err := svc.InitiateWithdrawal(ctx, WithdrawalInput{AccountID: acct.ID, Amount: decimal.NewFromInt(500)})
	require.NoError(t, err)
	assert.Equal(t, "NGN", tx.CurrencyCode)
	assert.NotEmpty(t, tx.Reference)
	assert.True(t, s.Balance(t, acct.ID).Equal(decimal.NewFromInt(300)))

	res, err := svc.FailWithdrawal(ctx, tx.Reference, time.Now(), "Could not resolve account")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Transaction.Status)
	assert.True(t, s.Balance(t, acct.ID).Equal(decimal.NewFromInt(800)))

	bal, err := svc.GetBalance(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "800", bal.String(), "cache refreshed after refund")

	_, err = svc.FinalizeWithdrawal(ctx, "missing-ref", time.Now())
	assert.ErrorIs(t, err, repo.ErrTransactionNotFound)
}

func TestRecordAlert_QueuesOutboxEvent(t *testing.T) {
	svc, s, ctx := newTestService(t)
	svc.RecordAlert(ctx, Alert{Kind: "account_not_found", Event: "charge.success", Reference: "R9", Detail: "no account"})

	evts, err := s.Repo.PollOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, model.EventSettlementAlert, evts[0].EventType)
	assert.Contains(t, evts[0].Payload, `"reference":"R9"`)
}

func TestCreateAccount(t *testing.T) {
	svc, _, ctx := newTestService(t)
	acct, w, err := svc.CreateAccount(ctx, 11, "New@Example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", acct.Email)
	assert.Equal(t, acct.ID, w.AccountID)
	assert.True(t, w.Balance.IsZero())

	_, _, err = svc.CreateAccount(ctx, 12, "other@example.com", "XYZ")
	assert.ErrorIs(t, err, repo.ErrUnknownCurrency)
}
