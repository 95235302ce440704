package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string

	// DBDriver: sqlite | postgres | mysql
	DBDriver string
	DBDSN    string

	// RedisAddr 为空表示不启用 Redis（库存缓存、商品锁、限流、对账状态都会降级）。
	RedisAddr string
	RedisDB   int

	// 事件链路：API 写 Redis Stream，Relay 转 Kafka，Consumer 落通知表。
	EventsEnabled      bool
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaGroupID       string
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 写接口限流与库存缓存策略
	WriteRateLimit  int
	WriteRateWindow time.Duration
	StockCacheTTL   time.Duration

	// 商品锁：持有时长与最长等待
	ProductLockTTL  time.Duration
	ProductLockWait time.Duration

	// 周期对账，0 表示关闭
	ReconcileInterval time.Duration

	// 维护接口（对账、缓存预热）的简单管理员令牌
	AdminToken string

	CORSOrigins []string
	LogLevel    string

	OtelEndpoint string
	ServiceName  string
}

// Load 读取并校验配置，缺失时使用默认值。会先尝试加载 .env。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBDriver:           strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBDSN:              getEnv("DB_DSN", "biz_manager.db"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "biz-order-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "biz-notification-consumer"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "biz:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "biz-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "biz-relay-1"),
		WriteRateLimit:     100,
		WriteRateWindow:    time.Second,
		StockCacheTTL:      24 * time.Hour,
		ProductLockTTL:     10 * time.Second,
		ProductLockWait:    3 * time.Second,
		AdminToken:         getEnv("ADMIN_TOKEN", "dev-admin-token"),
		CORSOrigins:        splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", ""),
		ServiceName:        getEnv("SERVICE_NAME", "biz-manager"),
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return AppConfig{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	cfg.EventsEnabled, err = getEnvBool("EVENTS_ENABLED", false)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid EVENTS_ENABLED: %w", err)
	}

	rateLimit, err := getEnvInt("WRITE_RATE_LIMIT", cfg.WriteRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_LIMIT must be > 0")
	}
	cfg.WriteRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("WRITE_RATE_WINDOW_SEC", int(cfg.WriteRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid WRITE_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("WRITE_RATE_WINDOW_SEC must be > 0")
	}
	cfg.WriteRateWindow = time.Duration(rateWindowSec) * time.Second

	stockTTLHour, err := getEnvInt("STOCK_CACHE_TTL_HOUR", int(cfg.StockCacheTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid STOCK_CACHE_TTL_HOUR: %w", err)
	}
	if stockTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("STOCK_CACHE_TTL_HOUR must be > 0")
	}
	cfg.StockCacheTTL = time.Duration(stockTTLHour) * time.Hour

	lockWaitMs, err := getEnvInt("PRODUCT_LOCK_WAIT_MS", int(cfg.ProductLockWait.Milliseconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid PRODUCT_LOCK_WAIT_MS: %w", err)
	}
	if lockWaitMs <= 0 {
		return AppConfig{}, fmt.Errorf("PRODUCT_LOCK_WAIT_MS must be > 0")
	}
	cfg.ProductLockWait = time.Duration(lockWaitMs) * time.Millisecond

	reconcileSec, err := getEnvInt("RECONCILE_INTERVAL_SEC", 0)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RECONCILE_INTERVAL_SEC: %w", err)
	}
	if reconcileSec < 0 {
		return AppConfig{}, fmt.Errorf("RECONCILE_INTERVAL_SEC must be >= 0")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSec) * time.Second

	if cfg.EventsEnabled {
		if cfg.RedisAddr == "" {
			return AppConfig{}, fmt.Errorf("EVENTS_ENABLED requires REDIS_ADDR")
		}
		if len(cfg.KafkaBrokers) == 0 {
			return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
		}
		if cfg.KafkaTopic == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if cfg.KafkaGroupID == "" {
			return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
		if cfg.OrderEventStream == "" || cfg.OrderEventGroup == "" || cfg.OrderEventConsumer == "" {
			return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM/GROUP/CONSUMER must not be empty")
		}
	}

	return cfg, nil
}

// RedisEnabled 是否配置了 Redis。
func (c AppConfig) RedisEnabled() bool { return c.RedisAddr != "" }

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
