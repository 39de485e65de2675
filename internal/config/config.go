package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Tables struct {
	Schema         string
	Shop           string
	ShopType       string
	SeckillVoucher string
	VoucherOrder   string
}

type Kafka struct {
	Brokers     []string
	Topic       string
	Group       string
	OrdersTopic string
	Workers     int
}

type Postgres struct {
	Host     string
	Port     string
	DB       string
	User     string
	Password string
	SSLMode  string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Breaker struct {
	Threshold   uint32
	OpenTimeout time.Duration
	MaxHalfOpen uint32
}

type Retry struct {
	Attempts     int
	Base         time.Duration
	Max          time.Duration
	JitterFactor float64
}

// Cache tunes the shop cache protocols.
type Cache struct {
	Mode           string
	ShopTTL        time.Duration
	TypeTTL        time.Duration
	NullTTL        time.Duration
	LogicalTTL     time.Duration
	LockLease      time.Duration
	RebuildWorkers int
	RebuildQueue   int
	HotCap         int
	RewarmInterval time.Duration
}

type Seckill struct {
	QueueCap     int
	LockLease    time.Duration
	DrainTimeout time.Duration
}

type Config struct {
	HTTPAddr string

	Pg      Postgres
	Redis   Redis
	Tables  Tables
	Kafka   Kafka
	Breaker Breaker
	Retry   Retry
	Cache   Cache
	Seckill Seckill
}

// Load fatals on error; main has nothing better to do with it.
func Load() Config {
	cfg, err := load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

func load() (Config, error) {
	_ = godotenv.Load("env/.env")

	cfg := Config{
		HTTPAddr: envDefault("HTTP_ADDR", ":8081"),

		Pg: Postgres{
			Host:     strings.TrimSpace(os.Getenv("PG_HOST")),
			Port:     strings.TrimSpace(envDefault("PG_PORT", "5432")),
			DB:       strings.TrimSpace(os.Getenv("PG_DB")),
			User:     strings.TrimSpace(os.Getenv("PG_USER")),
			Password: strings.TrimSpace(os.Getenv("PG_PASSWORD")),
			SSLMode:  strings.TrimSpace(envDefault("PG_SSLMODE", "disable")),
		},

		Redis: Redis{
			Addr:     envDefault("REDIS_ADDR", "localhost:6379"),
			Password: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
			DB:       envInt("REDIS_DB", 0),
		},

		Tables: Tables{
			Schema:         envDefault("DB_SCHEMA", "public"),
			Shop:           envDefault("TBL_SHOP", "tb_shop"),
			ShopType:       envDefault("TBL_SHOP_TYPE", "tb_shop_type"),
			SeckillVoucher: envDefault("TBL_SECKILL_VOUCHER", "tb_seckill_voucher"),
			VoucherOrder:   envDefault("TBL_VOUCHER_ORDER", "tb_voucher_order"),
		},

		Kafka: Kafka{
			Brokers:     splitCSV(strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))),
			Topic:       envDefault("KAFKA_TOPIC", "shop-changes"),
			Group:       envDefault("KAFKA_GROUP", "shop-cache-invalidator"),
			OrdersTopic: envDefault("KAFKA_ORDERS_TOPIC", "voucher-orders"),
			Workers:     envInt("KAFKA_WORKERS", 4),
		},

		Breaker: Breaker{
			Threshold:   envUint32("BREAKER_THRESHOLD", 5),
			OpenTimeout: envDurationMS("BREAKER_OPENTIMEOUT", 10*time.Second),
			MaxHalfOpen: envUint32("BREAKER_MAXHALFOPEN", 3),
		},

		Retry: Retry{
			Attempts:     envInt("RETRY_ATTEMPTS", 5),
			Base:         envDurationMS("RETRY_BASE", 50*time.Millisecond),
			Max:          envDurationMS("RETRY_MAX", time.Second),
			JitterFactor: envFloat64("RETRY_JITTERFACTOR", 0.3),
		},

		Cache: Cache{
			Mode:           envDefault("CACHE_MODE", ModeLogical),
			ShopTTL:        envDurationMS("CACHE_SHOP_TTL", 30*time.Minute),
			TypeTTL:        envDurationMS("CACHE_TYPE_TTL", 30*time.Minute),
			NullTTL:        envDurationMS("CACHE_NULL_TTL", 2*time.Minute),
			LogicalTTL:     envDurationMS("CACHE_LOGICAL_TTL", 30*time.Minute),
			LockLease:      envDurationMS("CACHE_LOCK_LEASE", 10*time.Second),
			RebuildWorkers: envInt("CACHE_REBUILD_WORKERS", 10),
			RebuildQueue:   envInt("CACHE_REBUILD_QUEUE", 1024),
			HotCap:         envInt("CACHE_HOT_CAP", 1000),
			RewarmInterval: envDurationMS("CACHE_REWARM_INTERVAL", 5*time.Minute),
		},

		Seckill: Seckill{
			QueueCap:     envInt("SECKILL_QUEUE_CAP", 1<<20),
			LockLease:    envDurationMS("SECKILL_LOCK_LEASE", defaultSeckillLease),
			DrainTimeout: envDurationMS("SECKILL_DRAIN_TIMEOUT", defaultDrainTimeout),
		},
	}

	// Validate required envs and basic sanity.
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg.clamp()
	return cfg, nil
}

const (
	defaultSeckillLease = 30 * time.Second
	defaultDrainTimeout = 10 * time.Second
)

// clamp replaces order pipeline settings under which admitted orders would
// be dropped without a write attempt.
func (c *Config) clamp() {
	if c.Seckill.DrainTimeout <= 0 {
		log.Printf("SECKILL_DRAIN_TIMEOUT is %v, adjusting to %v", c.Seckill.DrainTimeout, defaultDrainTimeout)
		c.Seckill.DrainTimeout = defaultDrainTimeout
	}
	if c.Seckill.LockLease <= 0 {
		log.Printf("SECKILL_LOCK_LEASE is %v, adjusting to %v", c.Seckill.LockLease, defaultSeckillLease)
		c.Seckill.LockLease = defaultSeckillLease
	}
}

const (
	ModeLogical     = "logical"
	ModePassThrough = "passthrough"
	ModeMutex       = "mutex"
)

func (c Config) validate() error {
	var missing []string
	req := map[string]string{
		"PG_HOST":     c.Pg.Host,
		"PG_DB":       c.Pg.DB,
		"PG_USER":     c.Pg.User,
		"PG_PASSWORD": c.Pg.Password,
		"REDIS_ADDR":  c.Redis.Addr,
	}
	for k, v := range req {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return &missingEnvError{Keys: missing}
	}

	switch c.Cache.Mode {
	case ModeLogical, ModePassThrough, ModeMutex:
	default:
		return fmt.Errorf("CACHE_MODE must be one of %s, %s, %s; got %q",
			ModeLogical, ModePassThrough, ModeMutex, c.Cache.Mode)
	}

	if c.Cache.RebuildWorkers <= 0 {
		log.Printf("CACHE_REBUILD_WORKERS is %d, adjusting to 1", c.Cache.RebuildWorkers)
	}
	if c.Seckill.QueueCap <= 0 {
		log.Printf("SECKILL_QUEUE_CAP is %d, adjusting to 1", c.Seckill.QueueCap)
	}
	if c.Retry.Attempts < 0 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 0", c.Retry.Attempts)
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 50ms", c.Retry.Base)
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
	}
	return nil
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Pg.User, c.Pg.Password),
		Host:   net.JoinHostPort(c.Pg.Host, c.Pg.Port),
		Path:   "/" + c.Pg.DB,
	}
	q := url.Values{}
	if c.Pg.SSLMode != "" {
		q.Set("sslmode", c.Pg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// KafkaEnabled reports whether brokers were configured; without them the
// invalidation consumer and the order events publisher are not started.
func (c Config) KafkaEnabled() bool { return len(c.Kafka.Brokers) > 0 }

func envDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return n
}

func envUint32(k string, def uint32) uint32 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	u, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		log.Printf("invalid %s=%q, using default %d: %v", k, v, def, err)
		return def
	}
	return uint32(u)
}

func envFloat64(k string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using default %.3f: %v", k, v, def, err)
		return def
	}
	return f
}

// envDurationMS supports either plain integer milliseconds ("1500") or
// Go duration strings ("1.5s", "250ms", "2m").
func envDurationMS(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	// If it looks like a duration with units, try ParseDuration first.
	if strings.IndexFunc(v, func(r rune) bool { return r < '0' || r > '9' }) != -1 {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
			return def
		}
		return d
	}
	// Otherwise treat as milliseconds.
	ms, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid %s=%q, using default %v: %v", k, v, def, err)
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
