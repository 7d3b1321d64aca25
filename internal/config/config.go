package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ocx/econcore/internal/events"
	"github.com/ocx/econcore/internal/notify"
	"github.com/ocx/econcore/internal/tracing"
	"github.com/ocx/econcore/internal/webhooks"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Core       CoreConfig       `yaml:"core"`
	Bus        BusConfig        `yaml:"bus"`
	Notify     NotifyConfig     `yaml:"notify"`
	Audit      AuditConfig      `yaml:"audit"`
	DataSource DataSourceConfig `yaml:"datasource"`
	Store      StoreConfig      `yaml:"store"`
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	PubSub     PubSubConfig     `yaml:"pubsub"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	Webhooks   WebhooksConfig   `yaml:"webhooks"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type ServerConfig struct {
	Port                   string   `yaml:"port"`
	Env                    string   `yaml:"env"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	IngestPerMinute        int      `yaml:"ingest_per_minute"` // per producer; 0 disables
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type CoreConfig struct {
	Scope            string `yaml:"scope"`
	DefaultStepCount int    `yaml:"default_step_count"`
	DefaultProfileID string `yaml:"default_profile_id"`
	// Seed fixes the plan sampler; 0 seeds from the clock.
	Seed int64 `yaml:"seed"`
}

type BusConfig struct {
	FaultCapacity int `yaml:"fault_capacity"`
	// DrainLimit bounds how many events one publisher delivers before the
	// queue moves to another goroutine; 0 means no bound.
	DrainLimit int `yaml:"drain_limit"`
}

type NotifyConfig struct {
	HistoryCap int                        `yaml:"history_cap"`
	ToastCap   int                        `yaml:"toast_cap"`
	ToastTTLMs int                        `yaml:"toast_ttl_ms"`
	Templates  map[string]notify.Template `yaml:"templates"`
}

type AuditConfig struct {
	Capacity int `yaml:"capacity"`
}

type DataSourceConfig struct {
	Kind        string `yaml:"kind"` // fixture | supabase | postgres
	FixturePath string `yaml:"fixture_path"`
}

type StoreConfig struct {
	Kind string `yaml:"kind"` // memory | redis | postgres
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Forward mirrors bus events to econ:events:<KIND> channels.
	Forward bool `yaml:"forward"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

type PubSubConfig struct {
	Project         string `yaml:"project"`
	Topic           string `yaml:"topic"`
	CredentialsFile string `yaml:"credentials_file"`
}

type WebhooksConfig struct {
	Workers       int                     `yaml:"workers"`
	MaxAttempts   int                     `yaml:"max_attempts"`
	Subscriptions []webhooks.Subscription `yaml:"subscriptions"`
}

// TracingConfig gates the OpenTelemetry provider. Disabled leaves spans on
// the no-op global provider.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter"` // stdout | otlp
	Endpoint   string  `yaml:"endpoint"`
	Insecure   bool    `yaml:"insecure"`
	SampleRate float64 `yaml:"sample_rate"`
}

type AdvisorConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// Defaults returns a configuration that runs fully in memory.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Port: "8080", Env: "development", ShutdownTimeoutSeconds: 10, IngestPerMinute: 600},
		Log:    LogConfig{Level: "info", Format: "text"},
		Core:   CoreConfig{Scope: "org_default", DefaultStepCount: 3},
		Bus:    BusConfig{FaultCapacity: 64, DrainLimit: 256},
		Notify: NotifyConfig{
			HistoryCap: notify.DefaultHistoryCap,
			ToastCap:   notify.DefaultToastCap,
			ToastTTLMs: int(notify.DefaultToastTTL / time.Millisecond),
		},
		Audit:      AuditConfig{Capacity: 500},
		DataSource: DataSourceConfig{Kind: "fixture"},
		Store:      StoreConfig{Kind: "memory"},
		PubSub:     PubSubConfig{Topic: "econ-governance-events"},
		Advisor:    AdvisorConfig{Model: "gemini-1.5-flash"},
		Webhooks:   WebhooksConfig{Workers: 4, MaxAttempts: 3},
		Tracing:    TracingConfig{Exporter: "stdout", Endpoint: "localhost:4317", SampleRate: 1},
	}
}

// LoadConfig reads path on top of Defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Defaults()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides file values with environment variables when set.
func (c *Config) ApplyEnv() {
	setString(&c.Server.Port, "PORT")
	setString(&c.Core.Scope, "ECON_SCOPE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Postgres.DSN, "DATABASE_URL")
	setString(&c.Supabase.URL, "SUPABASE_URL")
	setString(&c.Supabase.ServiceKey, "SUPABASE_SERVICE_KEY")
	setString(&c.PubSub.Project, "PUBSUB_PROJECT")
	setString(&c.PubSub.Topic, "PUBSUB_TOPIC")
	setString(&c.PubSub.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Advisor.APIKey, "GEMINI_API_KEY")
	setString(&c.Tracing.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	if v := os.Getenv("ECON_TRACING"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = on
		}
	}
	if v := os.Getenv("ECON_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Core.Seed = seed
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch c.DataSource.Kind {
	case "fixture", "supabase", "postgres":
	default:
		return fmt.Errorf("datasource.kind %q: want fixture, supabase or postgres", c.DataSource.Kind)
	}
	switch c.Store.Kind {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("store.kind %q: want memory, redis or postgres", c.Store.Kind)
	}
	if c.Core.DefaultStepCount < 1 {
		return fmt.Errorf("core.default_step_count must be at least 1")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter %q: want stdout or otlp", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required for the otlp exporter")
		}
	}
	for i, sub := range c.Webhooks.Subscriptions {
		if sub.URL == "" {
			return fmt.Errorf("webhooks.subscriptions[%d]: url is required", i)
		}
		for _, k := range sub.Kinds {
			if !k.Valid() {
				return fmt.Errorf("webhooks.subscriptions[%d]: unknown event kind %q", i, k)
			}
		}
	}
	for k := range c.Notify.Templates {
		if !events.Kind(k).Valid() {
			return fmt.Errorf("notify.templates: unknown event kind %q", k)
		}
	}
	return nil
}

// NotifyTemplates returns the default templates with configured overrides.
func (c *Config) NotifyTemplates() notify.Templates {
	overrides := make(notify.Templates, len(c.Notify.Templates))
	for k, t := range c.Notify.Templates {
		overrides[events.Kind(k)] = t
	}
	return notify.DefaultTemplates().Merge(overrides)
}

// SinkConfig converts the feed bounds for notify.NewSink.
func (c *Config) SinkConfig() notify.Config {
	return notify.Config{
		HistoryCap: c.Notify.HistoryCap,
		ToastCap:   c.Notify.ToastCap,
		ToastTTL:   time.Duration(c.Notify.ToastTTLMs) * time.Millisecond,
		Scope:      c.Core.Scope,
	}
}

// TracingSetup converts the tracing section for tracing.Setup.
func (c *Config) TracingSetup() tracing.Config {
	return tracing.Config{
		ServiceName: "econcore",
		Scope:       c.Core.Scope,
		Exporter:    c.Tracing.Exporter,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		SampleRate:  c.Tracing.SampleRate,
	}
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}
