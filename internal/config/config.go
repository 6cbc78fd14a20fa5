// Package config loads and validates the process-wide SourceConfig
// registry and the rest of the application configuration via viper.
// Configuration is treated as init-time immutable; Reload reconstructs
// the whole config rather than mutating shared state in place, so that
// a hot reload between runs always yields fresh source client instances.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kidney-genetics/ingestion-core/internal/domain"
)

// defaultSources seeds every known source with sane defaults; a config
// file or env vars may override any field. Adding a source means adding
// an entry here (and to the orchestrator's registry) — never a reflective
// name lookup at run time.
var defaultSources = map[string]domain.SourceConfig{
	string(domain.SourcePubTator): {
		Name: string(domain.SourcePubTator), BaseURL: "https://www.ncbi.nlm.nih.gov/research/pubtator3-api",
		RequestsPerSecond: 3, MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 30 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 60 * time.Second, CacheTTLDays: 7,
		MinThreshold: 3, MinThresholdEnabled: true, CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second,
		KidneyKeywords: []string{"kidney", "renal", "nephro"},
	},
	string(domain.SourceGenCC): {
		Name: string(domain.SourceGenCC), BaseURL: "https://search.thegencc.org/download/action/submissions-export-xlsx",
		RequestsPerSecond: 1, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 60 * time.Second, CacheTTLDays: 7,
		MinThreshold: 1, MinThresholdEnabled: true, CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second,
		KidneyKeywords: []string{"kidney", "renal", "nephro"},
	},
	string(domain.SourcePanelApp): {
		Name: string(domain.SourcePanelApp), BaseURL: "https://panelapp.genomicsengland.co.uk/api/v1",
		RequestsPerSecond: 2, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 60 * time.Second, CacheTTLDays: 7,
		MinThreshold: 1, MinThresholdEnabled: true, CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second,
		KidneyKeywords: []string{"kidney", "renal", "nephro"},
	},
	string(domain.SourceDiagnosticPanels): {
		Name: string(domain.SourceDiagnosticPanels), RequestsPerSecond: 100, MaxRetries: 1,
		CacheTTLDays: 0, MinThreshold: 1, MinThresholdEnabled: true,
	},
	string(domain.SourceLiterature): {
		Name: string(domain.SourceLiterature), RequestsPerSecond: 100, MaxRetries: 1,
		CacheTTLDays: 0, MinThreshold: 1, MinThresholdEnabled: true,
	},
	string(domain.AnnotationHGNC): {
		Name: string(domain.AnnotationHGNC), BaseURL: "https://rest.genenames.org",
		RequestsPerSecond: 3, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 15 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 30,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationGnomAD): {
		Name: string(domain.AnnotationGnomAD), BaseURL: "https://gnomad.broadinstitute.org/api",
		RequestsPerSecond: 5, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 14,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationClinVar): {
		Name: string(domain.AnnotationClinVar), BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		RequestsPerSecond: 3, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 7,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationHPO): {
		Name: string(domain.AnnotationHPO), BaseURL: "https://ontology.jax.org/api/network",
		RequestsPerSecond: 5, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 1,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationMGI): {
		Name: string(domain.AnnotationMGI), BaseURL: "https://www.informatics.jax.org",
		RequestsPerSecond: 2, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 30,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationSTRING): {
		Name: string(domain.AnnotationSTRING), BaseURL: "https://string-db.org/api",
		RequestsPerSecond: 5, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 30,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationGTEx): {
		Name: string(domain.AnnotationGTEx), BaseURL: "https://gtexportal.org/api/v2",
		RequestsPerSecond: 3, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 30,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
	string(domain.AnnotationDescartes): {
		Name: string(domain.AnnotationDescartes), BaseURL: "https://descartes.brotmanbaty.org/api",
		RequestsPerSecond: 2, MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 20 * time.Second,
		ExponentialBase: 2, Jitter: true, Timeout: 30 * time.Second, CacheTTLDays: 30,
		CircuitBreakerThreshold: 5, CircuitBreakerTimeout: 60 * time.Second, UseHTTPCache: true,
	},
}

// Manager implements domain.ConfigManager using viper.
type Manager struct {
	config *domain.Config
	log    *logrus.Logger
}

// NewManager loads configuration from (in ascending priority) built-in
// defaults, an optional config.yaml, and KGI_-prefixed environment
// variables.
func NewManager(log *logrus.Logger) (*Manager, error) {
	m := &Manager{log: log}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/kidney-genetics-ingestion/")

	viper.SetEnvPrefix("KGI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &domain.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Sources == nil {
		cfg.Sources = map[string]domain.SourceConfig{}
	}
	for name, def := range defaultSources {
		if _, ok := cfg.Sources[name]; !ok {
			cfg.Sources[name] = def
		}
	}

	m.applyThresholdCoercion(cfg)

	m.config = cfg
	return nil
}

func (m *Manager) setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "kidney_genetics")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.sqlite_path", "./kgi-dev.sqlite")

	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "24h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("mcp.server_name", "kidney-genetics-ingestion")
	viper.SetDefault("mcp.server_version", "1.0.0")
	viper.SetDefault("mcp.transport_type", "stdio")
	viper.SetDefault("mcp.http_port", 8091)
	viper.SetDefault("mcp.http_host", "0.0.0.0")
	viper.SetDefault("mcp.request_timeout", "30s")

	viper.SetDefault("normalizer.auto_accept_threshold", 0.9)
	viper.SetDefault("normalizer.reject_threshold", 0.3)
	viper.SetDefault("normalizer.hgnc_rate_limit", 3)

	viper.SetDefault("orchestrator.max_concurrent_sources", 3)
	viper.SetDefault("orchestrator.pause_check_interval", 50)
}

// applyThresholdCoercion implements spec.md §4.7's load-time coercion:
// a fractional or < 1 threshold becomes 1 (with a warning); a missing
// enabled flag defaults to enabled. A threshold given as a string that
// does not parse as an integer (e.g. from an environment variable) makes
// viper.Unmarshal in loadConfig fail before this runs.
func (m *Manager) applyThresholdCoercion(cfg *domain.Config) {
	for name, sc := range cfg.Sources {
		key := "sources." + name
		invalid := sc.MinThreshold < 1
		if f, ok := viper.Get(key + ".min_threshold").(float64); ok && f != float64(int64(f)) {
			invalid = true
		}
		if invalid {
			if m.log != nil {
				m.log.WithFields(logrus.Fields{"source": name, "threshold": sc.MinThreshold}).
					Warn("invalid min_threshold, coercing to 1")
			}
			sc.MinThreshold = 1
		}
		if !viper.IsSet(key + ".min_threshold_enabled") {
			sc.MinThresholdEnabled = true
		}
		cfg.Sources[name] = sc
	}
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetSourceConfig returns the declarative registry entry for a source.
// The orchestrator refuses to start a source whose name is not present.
func (m *Manager) GetSourceConfig(source domain.SourceName) (domain.SourceConfig, bool) {
	sc, ok := m.config.Sources[string(source)]
	return sc, ok
}

// Reload reconstructs the configuration from scratch; callers must
// reconstruct source client instances after a reload rather than mutate
// shared state in place.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	cfg := m.config

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("invalid database driver: %s", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if cfg.Cache.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(cfg.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	for name := range cfg.Sources {
		if _, known := defaultSources[name]; !known {
			return fmt.Errorf("unknown source in config: %s", name)
		}
	}

	return nil
}

// DatabaseConnectionString returns a libpq-style DSN.
func (m *Manager) DatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// RedisConnectionString returns the Redis connection URL.
func (m *Manager) RedisConnectionString() string {
	return m.config.Cache.RedisURL
}
