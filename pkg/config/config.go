package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/DannyMichaels/code-dojo-app/internal/belt"
	"github.com/DannyMichaels/code-dojo-app/internal/logging"
	"github.com/DannyMichaels/code-dojo-app/internal/mastery"
	"github.com/DannyMichaels/code-dojo-app/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. DOJO_SERVER_HTTP_PORT.
const EnvPrefix = "DOJO"

// Config is the service configuration.
type Config struct {
	Server    ServerConfig                `yaml:"server" json:"server"`
	Database  DatabaseConfig              `yaml:"database" json:"database"`
	Lock      LockConfig                  `yaml:"lock" json:"lock"`
	Reasoning ReasoningConfig             `yaml:"reasoning" json:"reasoning"`
	Mastery   mastery.Params              `yaml:"mastery" json:"mastery"`
	Belts     map[string]belt.Requirement `yaml:"belts,omitempty" json:"belts,omitempty"`
	Security  SecurityConfig              `yaml:"security" json:"security"`
	NATS      NATSConfig                  `yaml:"nats" json:"nats"`
	Telemetry TelemetryConfig             `yaml:"telemetry" json:"telemetry"`
	Logging   logging.Config              `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP server. WriteTimeout stays zero by
// default since turn streams can outlive any fixed deadline.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	HTTPPort        int           `yaml:"http_port" json:"http_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Type string `yaml:"type" json:"type"` // memory, sqlite, postgres
	Path string `yaml:"path" json:"path"` // sqlite file
	DSN  string `yaml:"dsn" json:"-"`     // postgres connection string
}

// LockConfig selects the session lock backend.
type LockConfig struct {
	Backend  string        `yaml:"backend" json:"backend"` // memory, redis, database
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	RedisURL string        `yaml:"redis_url" json:"-"`
}

// ReasoningConfig points at an OpenAI-compatible chat completions endpoint.
type ReasoningConfig struct {
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	APIKey          string        `yaml:"api_key" json:"-"`
	Model           string        `yaml:"model" json:"model"`
	MaxOutputTokens int           `yaml:"max_output_tokens" json:"max_output_tokens"`
	MaxRounds       int           `yaml:"max_rounds" json:"max_rounds"`
	Temperature     float64       `yaml:"temperature" json:"temperature"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
	HistoryLimit    int           `yaml:"history_limit" json:"history_limit"`
}

// SecurityConfig controls authentication and CORS.
type SecurityConfig struct {
	EnableAuth     bool          `yaml:"enable_auth" json:"enable_auth"`
	JWTSecret      string        `yaml:"jwt_secret" json:"-"`
	TokenTTL       time.Duration `yaml:"token_ttl" json:"token_ttl"`
	APIKeyHashes   []string      `yaml:"api_key_hashes" json:"-"`
	AllowedOrigins []string      `yaml:"allowed_origins" json:"allowed_origins"`
}

// NATSConfig enables domain event publishing.
type NATSConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled"`
	URL        string        `yaml:"url" json:"url"`
	StreamName string        `yaml:"stream_name" json:"stream_name"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	Environment  string  `yaml:"environment" json:"environment"`
	SampleRatio  float64 `yaml:"sample_ratio" json:"sample_ratio"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			HTTPPort:        8080,
			ReadTimeout:     30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "memory",
			Path: "dojo.db",
		},
		Lock: LockConfig{
			Backend: "memory",
			TTL:     5 * time.Minute,
		},
		Reasoning: ReasoningConfig{
			Endpoint:        "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			MaxOutputTokens: 4096,
			MaxRounds:       5,
			Temperature:     0.7,
			RequestTimeout:  2 * time.Minute,
			HistoryLimit:    50,
		},
		Mastery: mastery.DefaultParams(),
		Security: SecurityConfig{
			TokenTTL:       24 * time.Hour,
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			URL:        "nats://localhost:4222",
			StreamName: "DOJO",
			Timeout:    5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "code-dojo",
			Environment:  "development",
			SampleRatio:  1,
		},
		Logging: logging.Config{
			Level:      "info",
			Format:     "json",
			BufferSize: logging.DefaultBufferSize,
		},
	}
}

// LoadConfigFromFile reads a YAML file over the defaults. ${VAR} references
// are expanded from the environment before parsing.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads path when given, applies overrides from v and validates the
// result. A missing path means defaults.
func Load(path string, v *viper.Viper) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadConfigFromFile(path); err != nil {
			return nil, err
		}
	}
	if v != nil {
		if err := ApplyOverrides(cfg, v); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewViper returns a viper instance reading DOJO_* environment variables.
// Callers bind command flags onto the same keys.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, o := range overrides {
		_ = v.BindEnv(o.key)
	}
	return v
}

type override struct {
	key   string
	apply func(cfg *Config, v *viper.Viper)
}

var overrides = []override{
	{"server.host", func(c *Config, v *viper.Viper) { c.Server.Host = v.GetString("server.host") }},
	{"server.http_port", func(c *Config, v *viper.Viper) { c.Server.HTTPPort = v.GetInt("server.http_port") }},
	{"database.type", func(c *Config, v *viper.Viper) { c.Database.Type = v.GetString("database.type") }},
	{"database.path", func(c *Config, v *viper.Viper) { c.Database.Path = v.GetString("database.path") }},
	{"database.dsn", func(c *Config, v *viper.Viper) { c.Database.DSN = v.GetString("database.dsn") }},
	{"lock.backend", func(c *Config, v *viper.Viper) { c.Lock.Backend = v.GetString("lock.backend") }},
	{"lock.ttl", func(c *Config, v *viper.Viper) { c.Lock.TTL = v.GetDuration("lock.ttl") }},
	{"lock.redis_url", func(c *Config, v *viper.Viper) { c.Lock.RedisURL = v.GetString("lock.redis_url") }},
	{"reasoning.endpoint", func(c *Config, v *viper.Viper) { c.Reasoning.Endpoint = v.GetString("reasoning.endpoint") }},
	{"reasoning.api_key", func(c *Config, v *viper.Viper) { c.Reasoning.APIKey = v.GetString("reasoning.api_key") }},
	{"reasoning.model", func(c *Config, v *viper.Viper) { c.Reasoning.Model = v.GetString("reasoning.model") }},
	{"reasoning.max_rounds", func(c *Config, v *viper.Viper) { c.Reasoning.MaxRounds = v.GetInt("reasoning.max_rounds") }},
	{"security.enable_auth", func(c *Config, v *viper.Viper) { c.Security.EnableAuth = v.GetBool("security.enable_auth") }},
	{"security.jwt_secret", func(c *Config, v *viper.Viper) { c.Security.JWTSecret = v.GetString("security.jwt_secret") }},
	{"security.allowed_origins", func(c *Config, v *viper.Viper) {
		c.Security.AllowedOrigins = v.GetStringSlice("security.allowed_origins")
	}},
	{"nats.enabled", func(c *Config, v *viper.Viper) { c.NATS.Enabled = v.GetBool("nats.enabled") }},
	{"nats.url", func(c *Config, v *viper.Viper) { c.NATS.URL = v.GetString("nats.url") }},
	{"telemetry.enabled", func(c *Config, v *viper.Viper) { c.Telemetry.Enabled = v.GetBool("telemetry.enabled") }},
	{"telemetry.otlp_endpoint", func(c *Config, v *viper.Viper) {
		c.Telemetry.OTLPEndpoint = v.GetString("telemetry.otlp_endpoint")
	}},
	{"logging.level", func(c *Config, v *viper.Viper) { c.Logging.Level = v.GetString("logging.level") }},
	{"logging.format", func(c *Config, v *viper.Viper) { c.Logging.Format = v.GetString("logging.format") }},
}

// OverrideKeys lists the keys ApplyOverrides understands.
func OverrideKeys() []string {
	keys := make([]string, len(overrides))
	for i, o := range overrides {
		keys[i] = o.key
	}
	return keys
}

// ApplyOverrides copies every key set in v (environment or changed flag)
// onto cfg. Unset keys leave the file value alone.
func ApplyOverrides(cfg *Config, v *viper.Viper) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	for _, o := range overrides {
		if v.IsSet(o.key) {
			o.apply(cfg, v)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.type %q", c.Database.Type)
	}

	if c.Lock.TTL <= 0 {
		return errors.New("lock.ttl must be positive")
	}
	switch c.Lock.Backend {
	case "memory":
	case "redis":
		if c.Lock.RedisURL == "" {
			return errors.New("lock.redis_url is required for the redis backend")
		}
	case "database":
		if c.Database.Type == "memory" {
			return errors.New("lock.backend database needs a sqlite or postgres database")
		}
	default:
		return fmt.Errorf("unknown lock.backend %q", c.Lock.Backend)
	}

	if _, err := url.ParseRequestURI(c.Reasoning.Endpoint); err != nil {
		return fmt.Errorf("reasoning.endpoint: %w", err)
	}
	if c.Reasoning.MaxRounds <= 0 {
		return errors.New("reasoning.max_rounds must be positive")
	}
	if c.Reasoning.MaxOutputTokens <= 0 {
		return errors.New("reasoning.max_output_tokens must be positive")
	}

	m := c.Mastery
	if m.DecayWindowDays <= 0 {
		return errors.New("mastery.decay_window_days must be positive")
	}
	if m.MasteredThreshold <= 0 || m.MasteredThreshold > 1 {
		return errors.New("mastery.mastered_threshold must be in (0, 1]")
	}
	if m.StreakBonusPerHit < 0 || m.StreakBonusCap < 0 || m.ContextBonusPerContext < 0 || m.ContextBonusCap < 0 {
		return errors.New("mastery bonuses must not be negative")
	}

	for name := range c.Belts {
		b, err := models.ParseBelt(name)
		if err != nil {
			return fmt.Errorf("belts: %w", err)
		}
		if b == models.TopBelt {
			return fmt.Errorf("belts: %s is the top rank and has no requirement", b)
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return errors.New("telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	return nil
}

// Checker builds the belt checker from the mastery constants and any
// per-belt requirement overrides.
func (c *Config) Checker() *belt.Checker {
	checker := belt.NewChecker(c.Mastery)
	if len(c.Belts) == 0 {
		return checker
	}
	table := make(map[int]belt.Requirement, len(c.Belts))
	for name, req := range c.Belts {
		if b, err := models.ParseBelt(name); err == nil {
			table[b.Index()] = req
		}
	}
	checker.Requirements = func(rank int) belt.Requirement {
		if req, ok := table[rank]; ok {
			return req
		}
		return belt.DefaultRequirement(rank)
	}
	return checker
}
