package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultFallbackReply is stored when the responder answered without usable text.
	DefaultFallbackReply = "ขออภัย ฉันไม่สามารถตอบคำถามนี้ได้ในขณะนี้"
	// DefaultErrorReply is stored when the responder could not be reached.
	DefaultErrorReply = "เกิดข้อผิดพลาดในการเชื่อมต่อ กรุณาลองใหม่อีกครั้ง"
)

const (
	ResponderWebhook = "webhook"
	ResponderModel   = "model"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Responder   ResponderConfig           `json:"responder"`
	Providers   map[string]ProviderConfig `json:"providers"`
}

type BasicConfig struct {
	ServerAddress     string   `json:"server_address"`
	AllowedOrigins    []string `json:"allowed_origins"`
	MinWorkers        int      `json:"min_workers"`
	MaxWorkers        int      `json:"max_workers"`
	QueueSize         int      `json:"queue_size"`
	WorkerIdleTimeout int      `json:"worker_idle_timeout"` // seconds
	ShutdownTimeout   int      `json:"shutdown_timeout"`    // seconds
	FallbackReply     string   `json:"fallback_reply"`
	ErrorReply        string   `json:"error_reply"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	DB             int    `json:"db"`
	SessionListTTL int    `json:"session_list_ttl"` // seconds
}

// Enabled reports whether a redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type ResponderConfig struct {
	Mode       string `json:"mode"`
	WebhookURL string `json:"webhook_url"`
	Timeout    int    `json:"timeout"` // seconds, per attempt
	Retries    int    `json:"retries"` // extra attempts after the first, -1 disables
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	APIKey     string `json:"api_key"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// Load reads configuration from the provided path (defaults to config.json),
// applies environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// sqlite files live next to the config unless an absolute path is given
	if sqliteCfg, ok := cfg.Databases["sqlite3"]; ok && isRelativeFile(sqliteCfg.DSN) {
		sqliteCfg.DSN = filepath.Join(filepath.Dir(absPath), sqliteCfg.DSN)
		cfg.Databases["sqlite3"] = sqliteCfg
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if addr := strings.TrimSpace(os.Getenv("CHATBRIDGE_ADDR")); addr != "" {
		if !strings.Contains(addr, ":") {
			if strings.Contains(addr, " ") {
				return fmt.Errorf("invalid CHATBRIDGE_ADDR value: %q", addr)
			}
			addr = ":" + addr
		}
		c.BasicConfig.ServerAddress = addr
	}
	if url := strings.TrimSpace(os.Getenv("CHATBRIDGE_WEBHOOK_URL")); url != "" {
		c.Responder.WebhookURL = url
	}
	if addr := strings.TrimSpace(os.Getenv("CHATBRIDGE_REDIS_ADDR")); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("parse CHATBRIDGE_REDIS_ADDR: %w", err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("parse CHATBRIDGE_REDIS_ADDR port: %w", err)
		}
		c.Redis.Host = host
		c.Redis.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	b := &c.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":3001"
	}
	if b.MinWorkers <= 0 {
		b.MinWorkers = 2
	}
	if b.MaxWorkers < b.MinWorkers {
		b.MaxWorkers = 32
		if b.MaxWorkers < b.MinWorkers {
			b.MaxWorkers = b.MinWorkers
		}
	}
	if b.QueueSize <= 0 {
		b.QueueSize = 128
	}
	if b.WorkerIdleTimeout <= 0 {
		b.WorkerIdleTimeout = 30
	}
	if b.ShutdownTimeout <= 0 {
		b.ShutdownTimeout = 30
	}
	if b.FallbackReply == "" {
		b.FallbackReply = DefaultFallbackReply
	}
	if b.ErrorReply == "" {
		b.ErrorReply = DefaultErrorReply
	}

	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := c.Databases["sqlite3"]; !ok {
		c.Databases["sqlite3"] = DatabaseConfig{DSN: "chat.db"}
	}

	if c.Redis.Enabled() && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.SessionListTTL <= 0 {
		c.Redis.SessionListTTL = 30
	}

	r := &c.Responder
	r.Mode = strings.ToLower(strings.TrimSpace(r.Mode))
	if r.Mode == "" {
		r.Mode = ResponderWebhook
	}
	if r.Timeout <= 0 {
		r.Timeout = 60
	}
	// zero means unset; a negative value disables retries
	switch {
	case r.Retries == 0:
		r.Retries = 1
	case r.Retries < 0:
		r.Retries = 0
	}
}

func (c *Config) validate() error {
	switch c.Responder.Mode {
	case ResponderWebhook:
		if c.Responder.WebhookURL == "" {
			return errors.New("responder.webhook_url must be configured")
		}
	case ResponderModel:
		if c.Responder.Provider == "" {
			return errors.New("responder.provider must be configured in model mode")
		}
		if _, ok := c.Providers[c.Responder.Provider]; !ok {
			return fmt.Errorf("provider %s not configured", c.Responder.Provider)
		}
	default:
		return fmt.Errorf("unknown responder mode: %s", c.Responder.Mode)
	}
	return nil
}

func isRelativeFile(dsn string) bool {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	return !filepath.IsAbs(dsn)
}
