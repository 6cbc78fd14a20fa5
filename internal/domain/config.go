package domain

import (
	"time"
)

// Config is the root application configuration, unmarshaled by viper.
type Config struct {
	Server      ServerConfig            `mapstructure:"server"`
	Database    DatabaseConfig          `mapstructure:"database"`
	Cache       CacheConfig             `mapstructure:"cache"`
	Logging     LoggingConfig           `mapstructure:"logging"`
	MCP         MCPConfig               `mapstructure:"mcp"`
	Normalizer  NormalizerConfig        `mapstructure:"normalizer"`
	Orchestrator OrchestratorConfig     `mapstructure:"orchestrator"`
	Sources     map[string]SourceConfig `mapstructure:"sources"`
}

// ServerConfig configures the admin HTTP surface (trigger/pause/resume/
// status). This is never the public read API, which is out of scope.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// Driver selects the persistence backend: "postgres" (default) or
	// "sqlite" for single-process/offline development, mirroring the
	// dual-backend store pattern this core was built from.
	Driver   string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// CacheConfig configures the namespaced Redis-backed cache service.
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MCPConfig configures the MCP admin tool surface.
type MCPConfig struct {
	ServerName     string        `mapstructure:"server_name"`
	ServerVersion  string        `mapstructure:"server_version"`
	TransportType  string        `mapstructure:"transport_type"` // not read: internal/mcp always serves over stdio
	HTTPPort       int           `mapstructure:"http_port"`
	HTTPHost       string        `mapstructure:"http_host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NormalizerConfig configures the gene normalizer and staging queue.
type NormalizerConfig struct {
	AutoAcceptThreshold float64 `mapstructure:"auto_accept_threshold"`
	RejectThreshold     float64 `mapstructure:"reject_threshold"`
	HGNCRateLimit       int     `mapstructure:"hgnc_rate_limit"`
}

// OrchestratorConfig configures pipeline-wide concurrency.
type OrchestratorConfig struct {
	MaxConcurrentSources int `mapstructure:"max_concurrent_sources"`
	PauseCheckInterval   int `mapstructure:"pause_check_interval"` // not read: internal/orchestrator checks every 50 genes/pages (pauseCheckInterval)
}

// SourceConfig is the declarative, per-source registry entry described by
// spec.md §3. Process-wide, init-at-startup, hot-reloadable between runs
// (a reload reconstructs source instances rather than mutating shared
// state in place).
type SourceConfig struct {
	Name                   string        `mapstructure:"name"`
	BaseURL                string        `mapstructure:"base_url"`
	APIKey                 string        `mapstructure:"api_key"`
	RequestsPerSecond      float64       `mapstructure:"requests_per_second"`
	MaxRetries             int           `mapstructure:"max_retries"`
	InitialDelay           time.Duration `mapstructure:"initial_delay"`
	MaxDelay               time.Duration `mapstructure:"max_delay"`
	ExponentialBase        float64       `mapstructure:"exponential_base"`
	Jitter                 bool          `mapstructure:"jitter"`
	Timeout                time.Duration `mapstructure:"timeout"`
	CacheTTLDays           int           `mapstructure:"cache_ttl_days"`
	MinThreshold           int           `mapstructure:"min_threshold"`
	MinThresholdEnabled    bool          `mapstructure:"min_threshold_enabled"`
	CircuitBreakerThreshold uint32       `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout  time.Duration `mapstructure:"circuit_breaker_timeout"`
	KidneyKeywords         []string      `mapstructure:"kidney_keywords"`
	UseHTTPCache           bool          `mapstructure:"use_http_cache"`
}
