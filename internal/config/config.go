package config

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string // empty disables the health listener

	// DB
	Env      string // "dev" | "prod"
	DBPath   string // e.g. "./data/smartgate.db"
	LogLevel slog.Level

	// Access policy and guest tariff (amounts in sen)
	MinConfidence       float64
	GuestBaseCents      int64
	GuestPerMinuteCents int64
	Currency            string

	// Cache and fan-out. Empty URLs fall back to in-process implementations.
	RedisURL      string
	CacheTTL      time.Duration
	AMQPURL       string
	AMQPExchange  string
	GateHits      int
	GateWindow    time.Duration
	AdminAuth     bool
	JWTSecret     string
	JWTTTL        time.Duration
	RecognizerURL string

	RecognizerTimeout time.Duration
	ProcessorTimeout  time.Duration

	// Touch 'n Go
	TNGBaseURL    string
	TNGAPIKey     string
	TNGMerchantID string
	TNGTerminalID string
	TNGMock       bool

	// Notification retention
	NotificationRetentionDays int // 0 = keep forever
	PruneIntervalHours        int // how often the pruner runs (default 6)
}

// FromEnv reads SMARTGATE_* variables. A .env file in the working directory
// is loaded first; variables already set in the environment win.
func FromEnv() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env", "err", err)
	}

	env := strings.ToLower(getenvDefault("SMARTGATE_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	return Config{
		HTTPAddr: getenvDefault("SMARTGATE_HTTP_ADDR", ":8080"),
		GRPCAddr: os.Getenv("SMARTGATE_GRPC_ADDR"),
		Env:      env,
		DBPath:   getenvDefault("SMARTGATE_DB_PATH", "./data/smartgate.db"),
		LogLevel: parseLevel(os.Getenv("SMARTGATE_LOG_LEVEL")),

		MinConfidence:       getenvFloat("SMARTGATE_MIN_CONFIDENCE", 0.45),
		GuestBaseCents:      int64(getenvInt("SMARTGATE_GUEST_BASE_CENTS", 250)),
		GuestPerMinuteCents: int64(getenvInt("SMARTGATE_GUEST_PER_MINUTE_CENTS", 75)),
		Currency:            strings.ToUpper(getenvDefault("SMARTGATE_CURRENCY", "MYR")),

		RedisURL:      os.Getenv("SMARTGATE_REDIS_URL"),
		CacheTTL:      getenvDuration("SMARTGATE_CACHE_TTL", time.Minute),
		AMQPURL:       os.Getenv("SMARTGATE_AMQP_URL"),
		AMQPExchange:  getenvDefault("SMARTGATE_AMQP_EXCHANGE", "smartgate.access"),
		GateHits:      getenvInt("SMARTGATE_GATE_THROTTLE_HITS", 5),
		GateWindow:    getenvDuration("SMARTGATE_GATE_THROTTLE_WINDOW", 3*time.Second),
		AdminAuth:     getenvBool("SMARTGATE_ADMIN_AUTH", env == "prod"),
		JWTSecret:     getenvDefault("SMARTGATE_JWT_SECRET", "dev-secret"),
		JWTTTL:        getenvDuration("SMARTGATE_JWT_TTL", 24*time.Hour),
		RecognizerURL: os.Getenv("SMARTGATE_RECOGNIZER_URL"),

		RecognizerTimeout: getenvDuration("SMARTGATE_RECOGNIZER_TIMEOUT", 5*time.Second),
		ProcessorTimeout:  getenvDuration("SMARTGATE_PROCESSOR_TIMEOUT", 15*time.Second),

		TNGBaseURL:    getenvDefault("SMARTGATE_TNG_BASE_URL", "https://sandbox.touchngo.com.my/mock"),
		TNGAPIKey:     os.Getenv("SMARTGATE_TNG_API_KEY"),
		TNGMerchantID: getenvDefault("SMARTGATE_TNG_MERCHANT_ID", "SMARTGATE"),
		TNGTerminalID: getenvDefault("SMARTGATE_TNG_TERMINAL_ID", "SG-DEMO-01"),
		TNGMock:       getenvBool("SMARTGATE_TNG_MOCK", true),

		NotificationRetentionDays: getenvInt("SMARTGATE_NOTIFICATION_RETENTION_DAYS", 30),
		PruneIntervalHours:        getenvInt("SMARTGATE_PRUNE_INTERVAL_HOURS", 6),
	}
}

// Logger builds the process logger: JSON in prod, text in dev.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.Env == "prod" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(v string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
