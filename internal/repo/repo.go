package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore is everything the ledger service needs from persistence.
// Methods ending in Atomic run in one database transaction under a row lock.
type LedgerStore interface {
	CreateAccount(ctx context.Context, acct *model.Account) (*model.Wallet, error)
	GetAccount(ctx context.Context, id uint64) (*model.Account, error)
	FindAccountByEmail(ctx context.Context, email string) (*model.Account, error)
	GetCurrency(ctx context.Context, code string) (*model.Currency, error)
	ListCurrencies(ctx context.Context) ([]model.Currency, error)
	GetWallet(ctx context.Context, accountID uint64) (*model.Wallet, error)
	FindByReference(ctx context.Context, issuer, reference string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, accountID uint64, limit int, since time.Time) ([]model.Transaction, error)

	ApplyDepositAtomic(ctx context.Context, rec DepositRecord) (Settlement, error)
	ReserveWithdrawalAtomic(ctx context.Context, rec WithdrawalRecord) (Settlement, error)
	FinalizeWithdrawalAtomic(ctx context.Context, issuer, reference string, completedAt time.Time) (Settlement, error)
	FailWithdrawalAtomic(ctx context.Context, issuer, reference string, failedAt time.Time, reason string) (Settlement, error)

	AppendOutbox(ctx context.Context, eventType string, accountID uint64, payload interface{}) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error

	CacheBalance(ctx context.Context, accountID, version uint64, bal decimal.Decimal) error
	GetCachedBalance(ctx context.Context, accountID uint64) (decimal.Decimal, error)
}

// MessageWriter is the subset of *kafka.Writer used by the repository.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Repository implements LedgerStore.
type Repository struct {
	db         *gorm.DB
	rdb        *redis.Client
	writer     MessageWriter
	balanceTTL time.Duration
	log        *zap.SugaredLogger
}

// NewRepository constructs repo.
func NewRepository(db *gorm.DB, rdb *redis.Client, w MessageWriter, balanceTTL time.Duration, logger *zap.SugaredLogger) *Repository {
	if balanceTTL <= 0 {
		balanceTTL = 5 * time.Minute
	}
	return &Repository{db: db, rdb: rdb, writer: w, balanceTTL: balanceTTL, log: logger}
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// GetWalletForUpdate locks the account's wallet row.
func (r *Repository) GetWalletForUpdate(ctx context.Context, tx *gorm.DB, accountID uint64) (*model.Wallet, error) {
	var w model.Wallet
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).First(&w).Error; err != nil {
		return nil, notFound(err, ErrWalletNotFound)
	}
	return &w, nil
}

// UpdateWallet with optimistic lock.
func (r *Repository) UpdateWallet(ctx context.Context, tx *gorm.DB, walletID uint64, newBalance decimal.Decimal, auths model.Authorizations, oldVersion uint64) error {
	res := tx.WithContext(ctx).
		Model(&model.Wallet{}).
		Where("id = ? AND version = ?", walletID, oldVersion).
		Updates(map[string]interface{}{
			"balance":        newBalance,
			"authorizations": auths,
			"version":        oldVersion + 1,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// CreateTransaction inserts record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) error {
	return tx.WithContext(ctx).Create(t).Error
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// AppendOutbox writes a standalone event outside any ledger mutation.
func (r *Repository) AppendOutbox(ctx context.Context, eventType string, accountID uint64, payload interface{}) error {
	evt, err := newOutboxEvent(eventType, accountID, payload)
	if err != nil {
		return err
	}
	return classify(r.CreateOutboxEvent(ctx, r.db, evt))
}

func newOutboxEvent(eventType string, accountID uint64, payload interface{}) (*model.OutboxEvent, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &model.OutboxEvent{
		Aggregate: "Wallet", AggregateID: accountID, EventType: eventType, Payload: string(b),
	}, nil
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id=?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka keyed by account so one account's events stay ordered.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", evt.AggregateID)),
		Value: []byte(evt.Payload),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "outbox_id", Value: []byte(fmt.Sprintf("%d", evt.ID))},
		},
		Time: time.Now(),
	}
	return r.writer.WriteMessages(ctx, msg)
}

func balanceKey(accountID uint64) string { return fmt.Sprintf("balance:%d", accountID) }

// cacheBalanceScript stores "version:balance" unless the cached entry already
// carries the same or a newer wallet version.
var cacheBalanceScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local v = tonumber(string.match(cur, '^(%d+):'))
  if v and v >= tonumber(ARGV[1]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[1] .. ':' .. ARGV[2], 'PX', ARGV[3])
return 1
`)

// CacheBalance writes Redis. Writes carrying an older wallet version than the
// cached one are dropped, so commits racing to the cache cannot go backwards.
func (r *Repository) CacheBalance(ctx context.Context, accountID, version uint64, bal decimal.Decimal) error {
	if r.rdb == nil {
		return nil
	}
	return cacheBalanceScript.Run(ctx, r.rdb, []string{balanceKey(accountID)},
		version, bal.String(), r.balanceTTL.Milliseconds()).Err()
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, accountID uint64) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, redis.Nil
	}
	str, err := r.rdb.Get(ctx, balanceKey(accountID)).Result()
	if err != nil {
		return decimal.Zero, err
	}
	_, bal, ok := strings.Cut(str, ":")
	if !ok {
		return decimal.Zero, fmt.Errorf("malformed cached balance %q", str)
	}
	return decimal.NewFromString(bal)
}
