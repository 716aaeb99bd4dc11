package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the process
type Config struct {
	LogLevel string
	Port     string
	GinMode  string

	DB       DBConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Workflow WorkflowConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN renders the postgres connection string
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

type JWTConfig struct {
	Secret []byte
	// TokenTTL is the lifetime of tokens issued by the login endpoint
	TokenTTL time.Duration
}

// RedisConfig is optional; an empty Addr disables the notification relay and tick leases
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type WorkflowConfig struct {
	SystemApproverID uuid.UUID

	AutoApprovalPeriod    time.Duration
	OrderGenerationPeriod time.Duration
	StatisticsPeriod      time.Duration

	WorkerCount int
	QueueSize   int

	ProcessingDelay time.Duration
	ConfirmMinDelay time.Duration
	ConfirmMaxDelay time.Duration

	// DeliveryAddressTemplate receives the request department through %s
	DeliveryAddressTemplate string
	// LeaseTTL bounds how long one replica may hold a tick lease
	LeaseTTL time.Duration
}

// Load reads configs/.env when present, then the process environment
func Load() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),
		GinMode:  os.Getenv("GIN_MODE"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "postgres"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDRESS"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Workflow: WorkflowConfig{
			DeliveryAddressTemplate: getEnv("DELIVERY_ADDRESS_TEMPLATE", "Company Address - %s Department"),
		},
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		if cfg.GinMode == "release" {
			return nil, fmt.Errorf("JWT_SECRET is required in release mode")
		}
		secret = "default_super_secret_key" // development fallback only
	}
	cfg.JWT.Secret = []byte(secret)

	var err error
	if cfg.JWT.TokenTTL, err = getDuration("JWT_TOKEN_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if raw := os.Getenv("SYSTEM_APPROVER_ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SYSTEM_APPROVER_ID %q: %w", raw, err)
		}
		cfg.Workflow.SystemApproverID = id
	}

	wf := &cfg.Workflow
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"AUTO_APPROVAL_PERIOD", 30 * time.Second, &wf.AutoApprovalPeriod},
		{"ORDER_GENERATION_PERIOD", 45 * time.Second, &wf.OrderGenerationPeriod},
		{"STATISTICS_PERIOD", 15 * time.Second, &wf.StatisticsPeriod},
		{"ORDER_PROCESSING_DELAY", 2 * time.Second, &wf.ProcessingDelay},
		{"ORDER_CONFIRM_MIN_DELAY", 30 * time.Second, &wf.ConfirmMinDelay},
		{"ORDER_CONFIRM_MAX_DELAY", 60 * time.Second, &wf.ConfirmMaxDelay},
		{"TICK_LEASE_TTL", 30 * time.Second, &wf.LeaseTTL},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if wf.WorkerCount, err = getInt("WORKFLOW_WORKERS", 8); err != nil {
		return nil, err
	}
	if wf.QueueSize, err = getInt("WORKFLOW_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the orchestrator relies on. The system approver is
// checked separately at startup because only `serve` requires it.
func (c WorkflowConfig) Validate() error {
	if c.AutoApprovalPeriod <= 0 || c.OrderGenerationPeriod <= 0 || c.StatisticsPeriod <= 0 {
		return fmt.Errorf("tick periods must be positive")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKFLOW_WORKERS must be at least 1, got %d", c.WorkerCount)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("WORKFLOW_QUEUE_SIZE must be at least 1, got %d", c.QueueSize)
	}
	if c.ProcessingDelay < 0 {
		return fmt.Errorf("ORDER_PROCESSING_DELAY must not be negative")
	}
	if c.ConfirmMinDelay < 0 || c.ConfirmMaxDelay < c.ConfirmMinDelay {
		return fmt.Errorf("invalid confirmation window [%s, %s]", c.ConfirmMinDelay, c.ConfirmMaxDelay)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
