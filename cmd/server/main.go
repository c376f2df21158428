package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/richardliu001/tipster-ledger/internal/config"
	"github.com/richardliu001/tipster-ledger/internal/logger"
	"github.com/richardliu001/tipster-ledger/internal/model"
	"github.com/richardliu001/tipster-ledger/internal/repo"
	"github.com/richardliu001/tipster-ledger/internal/service"
	httptransport "github.com/richardliu001/tipster-ledger/internal/transport/http"
	"github.com/richardliu001/tipster-ledger/internal/webhook"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "internal/config/config.yaml"
}

func main() {
	// 1. env + config; a missing .env is fine
	_ = godotenv.Load()
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(model.All()...); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.Hash{},
	}
	defer kw.Close()

	// 6. repo & service
	repository := repo.NewRepository(gdb, rdb, kw, cfg.Ledger.BalanceCacheTTL, log)
	if err := repository.SeedCurrencies(context.Background(), model.DefaultCurrencies); err != nil {
		log.Fatalf("seed currencies: %v", err)
	}
	svc := service.NewLedgerService(repository, log, service.Options{
		PaymentIssuer:         cfg.Ledger.PaymentIssuer,
		AuthorizationCapacity: cfg.Ledger.AuthorizationCapacity,
	})

	// 7. webhook + gin router
	wh := httptransport.NewWebhookHandler(
		webhook.NewVerifier(cfg.Webhook.Secret),
		webhook.NewSettlementDispatcher(svc),
		svc, cfg.Webhook, log)
	router := httptransport.NewRouter(svc, wh, cfg.RateLimit, log)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("ledger-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
