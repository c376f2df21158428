package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Action is what the webhook endpoint answers for a class of outcome.
type Action string

const (
	ActionReject Action = "reject"
	ActionAck    Action = "ack"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Relay     RelayConfig     `yaml:"relay"`
	LogLevel  string          `yaml:"log_level"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// WebhookConfig controls the payment provider callback endpoint.
type WebhookConfig struct {
	Secret           string        `yaml:"secret"`
	SignatureHeader  string        `yaml:"signature_header"`
	OnUnverified     Action        `yaml:"on_unverified"`
	OnUnhandled      Action        `yaml:"on_unhandled"`
	OnInvalidPayload Action        `yaml:"on_invalid_payload"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes"`
}

type LedgerConfig struct {
	PaymentIssuer         string        `yaml:"payment_issuer"`
	AuthorizationCapacity int           `yaml:"authorization_capacity"`
	BalanceCacheTTL       time.Duration `yaml:"balance_cache_ttl"`
}

// RelayConfig drives the outbox poller.
type RelayConfig struct {
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml bytes, applies env overrides and defaults, then validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		c.Postgres.DSN = c.Postgres.DSN + " password=" + pw
	}
	if secret := os.Getenv("PAYSTACK_SECRET_KEY"); secret != "" {
		c.Webhook.Secret = secret
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	w := &c.Webhook
	if w.SignatureHeader == "" {
		w.SignatureHeader = "x-paystack-signature"
	}
	if w.OnUnverified == "" {
		w.OnUnverified = ActionReject
	}
	if w.OnUnhandled == "" {
		w.OnUnhandled = ActionAck
	}
	if w.OnInvalidPayload == "" {
		w.OnInvalidPayload = ActionAck
	}
	if w.Timeout == 0 {
		w.Timeout = 10 * time.Second
	}
	if w.MaxBodyBytes == 0 {
		w.MaxBodyBytes = 1 << 20
	}
	l := &c.Ledger
	if l.PaymentIssuer == "" {
		l.PaymentIssuer = "PAYSTACK"
	}
	if l.AuthorizationCapacity == 0 {
		l.AuthorizationCapacity = 5
	}
	if l.BalanceCacheTTL == 0 {
		l.BalanceCacheTTL = 5 * time.Minute
	}
	if c.Relay.Interval == 0 {
		c.Relay.Interval = time.Second
	}
	if c.Relay.Batch == 0 {
		c.Relay.Batch = 100
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("webhook.secret is required (or PAYSTACK_SECRET_KEY)"))
	}
	if !validAction(c.Webhook.OnUnverified) {
		errs = append(errs, fmt.Errorf("webhook.on_unverified: unknown action %q", c.Webhook.OnUnverified))
	}
	if !validAction(c.Webhook.OnUnhandled) {
		errs = append(errs, fmt.Errorf("webhook.on_unhandled: unknown action %q", c.Webhook.OnUnhandled))
	}
	if !validAction(c.Webhook.OnInvalidPayload) {
		errs = append(errs, fmt.Errorf("webhook.on_invalid_payload: unknown action %q", c.Webhook.OnInvalidPayload))
	}
	if c.Ledger.AuthorizationCapacity < 1 {
		errs = append(errs, errors.New("ledger.authorization_capacity must be positive"))
	}
	return errors.Join(errs...)
}

func validAction(a Action) bool {
	return a == ActionReject || a == ActionAck
}
