// Package testutil builds throwaway ledger stores for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Issuer is the payment issuer used by fixtures.
const Issuer = "PAYSTACK"

// NewDB opens a private in-memory sqlite database with the ledger schema.
// A single connection makes concurrent transactions queue the way row
// locks would on Postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	require.NoError(t, db.Create(&model.Currency{Code: "NGN", Name: "Nigerian Naira", Symbol: "₦", Exponent: 2}).Error)
	return db
}

// NewRedis starts miniredis and returns a client for it.
func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

// Writer records Kafka messages in memory.
type Writer struct {
	mu   sync.Mutex
	Msgs []kafka.Message
	Err  error
}

func (w *Writer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Err != nil {
		return w.Err
	}
	w.Msgs = append(w.Msgs, msgs...)
	return nil
}

// Store bundles a repository with the handles tests poke at directly.
type Store struct {
	Repo   *repo.Repository
	DB     *gorm.DB
	Redis  *miniredis.Miniredis
	Writer *Writer
}

// NewStore wires a repository over sqlite, miniredis and an in-memory writer.
func NewStore(t testing.TB) *Store {
	t.Helper()
	db := NewDB(t)
	rdb, mr := NewRedis(t)
	w := &Writer{}
	return &Store{
		Repo:   repo.NewRepository(db, rdb, w, time.Minute, zap.NewNop().Sugar()),
		DB:     db,
		Redis:  mr,
		Writer: w,
	}
}

// Account registers an account with an empty NGN wallet.
func (s *Store) Account(t testing.TB, userID uint64, email string) *model.Account {
	t.Helper()
	acct := &model.Account{UserID: userID, Email: email, CurrencyCode: "NGN"}
	_, err := s.Repo.CreateAccount(context.Background(), acct)
	require.NoError(t, err)
	return acct
}

// SeedBalance overwrites a wallet balance without recording a transaction.
func (s *Store) SeedBalance(t testing.TB, accountID uint64, bal decimal.Decimal) {
	t.Helper()
	require.NoError(t, s.DB.Model(&model.Wallet{}).Where("account_id = ?", accountID).
		Update("balance", bal).Error)
}

// Balance reads the wallet balance straight from the database.
func (s *Store) Balance(t testing.TB, accountID uint64) decimal.Decimal {
	t.Helper()
	var w model.Wallet
	require.NoError(t, s.DB.Where("account_id = ?", accountID).First(&w).Error)
	return w.Balance
}

// CountTransactions counts rows matching the optional reference.
func (s *Store) CountTransactions(t testing.TB, reference string) int64 {
	t.Helper()
	q := s.DB.Model(&model.Transaction{})
	if reference != "" {
		q = q.Where("reference = ?", reference)
	}
	var n int64
	require.NoError(t, q.Count(&n).Error)
	return n
}
