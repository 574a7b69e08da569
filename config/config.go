// Package config provides configuration management for the application.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file (config.yaml or config/config.yaml) with ${VAR} and ${VAR:-default}
// placeholders, and finally well-known environment variables which always win.
// A .env file in the working directory is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sirchat/internal/httpclient"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig                 `yaml:"server"`
	Providers map[string]RawProviderConfig `yaml:"providers"`
	Proxy     ProxyConfig                  `yaml:"proxy"`
	Auth      AuthConfig                   `yaml:"auth"`
	Workspace WorkspaceConfig              `yaml:"workspace"`
	Storage   StorageConfig                `yaml:"storage"`
	Cache     CacheConfig                  `yaml:"cache"`
	Metrics   MetricsConfig                `yaml:"metrics"`
	Logging   LogConfig                    `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	// BodySizeLimit uses echo's BodyLimit syntax, e.g. "4M"
	BodySizeLimit string `yaml:"body_size_limit"`
	// WebRoot is the directory holding the built UI; empty serves a placeholder page
	WebRoot            string   `yaml:"web_root"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	// RateLimitRPS limits chat requests per client IP; 0 disables the limiter
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// RawProviderConfig is a provider entry as written in YAML or the environment.
type RawProviderConfig struct {
	Type         string `yaml:"type"`
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
}

// ProxyConfig bounds upstream completion calls.
type ProxyConfig struct {
	// CompletionTimeout bounds a buffered completion end to end
	CompletionTimeout time.Duration `yaml:"completion_timeout"`
	// StreamIdleTimeout aborts a stream when no chunk arrives for this long
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout"`
}

// AuthConfig configures the Supabase session backend.
type AuthConfig struct {
	SupabaseURL     string `yaml:"supabase_url"`
	SupabaseAnonKey string `yaml:"supabase_anon_key"`
	// JWTSecret enables local HS256 verification; without it tokens are
	// verified against the auth server
	JWTSecret string `yaml:"jwt_secret"`
	// CookieName overrides the derived sb-<project-ref>-auth-token name
	CookieName string `yaml:"cookie_name"`
	// GateDisabled allows starting without a session backend; every page is then public
	GateDisabled bool `yaml:"gate_disabled"`
}

// WorkspaceConfig selects where home workspaces are looked up.
type WorkspaceConfig struct {
	// Backend is "supabase", "postgresql", or "sqlite"
	Backend string `yaml:"backend"`
}

// StorageConfig holds database configuration shared by features.
type StorageConfig struct {
	// Type is "sqlite", "postgresql", or "mongodb"
	Type       string           `yaml:"type"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	PostgreSQL PostgreSQLConfig `yaml:"postgresql"`
	MongoDB    MongoDBConfig    `yaml:"mongodb"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgreSQLConfig holds PostgreSQL-specific configuration
type PostgreSQLConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URL      string `yaml:"url"`
	Database string `yaml:"database"`
}

// CacheConfig configures the workspace lookup cache.
type CacheConfig struct {
	// Type is "local" or "redis"
	Type     string        `yaml:"type"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redis_url"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	// Format is "json" or "text"; empty picks text on a terminal and JSON otherwise
	Format string `yaml:"format"`
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`
}

// LoadResult is returned by Load.
type LoadResult struct {
	Config *Config
	// Source is the YAML file that was read, empty when none was found
	Source string
}

// configPaths are tried in order; the first readable file wins.
var configPaths = []string{"config.yaml", "config/config.yaml"}

// Load reads configuration from defaults, the optional YAML file and the environment.
func Load() (*LoadResult, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := buildDefaultConfig()
	source := ""

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		expanded := expandString(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		source = path
		break
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &LoadResult{Config: cfg, Source: source}, nil
}

func buildDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          "8080",
			BodySizeLimit: "4M",
			RateLimitRPS:  10,
		},
		Providers: map[string]RawProviderConfig{},
		Proxy: ProxyConfig{
			CompletionTimeout: 120 * time.Second,
			StreamIdleTimeout: 60 * time.Second,
		},
		Workspace: WorkspaceConfig{Backend: "supabase"},
		Storage: StorageConfig{
			Type:       "sqlite",
			SQLite:     SQLiteConfig{Path: "data/sirchat.db"},
			PostgreSQL: PostgreSQLConfig{MaxConns: 10},
			MongoDB:    MongoDBConfig{Database: "sirchat"},
		},
		Cache: CacheConfig{
			Type: "local",
			TTL:  5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Logging: LogConfig{Level: "info"},
	}
}

// applyEnvOverrides overlays well-known environment variables. Env values
// always win over YAML values.
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Server.BodySizeLimit, "BODY_SIZE_LIMIT")
	setString(&cfg.Server.WebRoot, "WEB_ROOT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORSAllowedOrigins = splitList(v)
	}
	if err := setFloat(&cfg.Server.RateLimitRPS, "RATE_LIMIT_RPS"); err != nil {
		return err
	}

	setDuration(&cfg.Proxy.CompletionTimeout, "COMPLETION_TIMEOUT")
	setDuration(&cfg.Proxy.StreamIdleTimeout, "STREAM_IDLE_TIMEOUT")

	setString(&cfg.Auth.SupabaseURL, "NEXT_PUBLIC_SUPABASE_URL")
	setString(&cfg.Auth.SupabaseURL, "SUPABASE_URL")
	setString(&cfg.Auth.SupabaseAnonKey, "NEXT_PUBLIC_SUPABASE_ANON_KEY")
	setString(&cfg.Auth.SupabaseAnonKey, "SUPABASE_ANON_KEY")
	setString(&cfg.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.Auth.CookieName, "SESSION_COOKIE_NAME")
	if err := setBool(&cfg.Auth.GateDisabled, "GATE_DISABLED"); err != nil {
		return err
	}

	setString(&cfg.Workspace.Backend, "WORKSPACE_BACKEND")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Storage.PostgreSQL.URL, "POSTGRES_URL")
	if err := setInt(&cfg.Storage.PostgreSQL.MaxConns, "POSTGRES_MAX_CONNS"); err != nil {
		return err
	}
	setString(&cfg.Storage.MongoDB.URL, "MONGODB_URL")
	setString(&cfg.Storage.MongoDB.Database, "MONGODB_DATABASE")

	setString(&cfg.Cache.Type, "CACHE_TYPE")
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")

	if err := setBool(&cfg.Metrics.Enabled, "METRICS_ENABLED"); err != nil {
		return err
	}
	setString(&cfg.Metrics.Endpoint, "METRICS_ENDPOINT")

	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	cfg.Providers = applyProviderEnvVars(cfg.Providers)
	return nil
}

// knownProviderEnvs maps well-known provider names to their environment variables.
var knownProviderEnvs = []struct {
	name       string
	apiKeyEnv  string
	baseURLEnv string
	orgEnv     string
}{
	{"openai", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_ORGANIZATION_ID"},
	{"groq", "", "GROQ_BASE_URL", ""},
}

// applyProviderEnvVars overlays well-known provider env vars onto the YAML map.
// Every known provider gets an entry, even without a server key, because
// Groq only ever uses the caller's key.
func applyProviderEnvVars(raw map[string]RawProviderConfig) map[string]RawProviderConfig {
	result := make(map[string]RawProviderConfig, len(raw)+len(knownProviderEnvs))
	for k, v := range raw {
		result[k] = v
	}

	for _, kp := range knownProviderEnvs {
		existing, ok := result[kp.name]
		if !ok {
			existing = RawProviderConfig{Type: kp.name}
		}
		if existing.Type == "" {
			existing.Type = kp.name
		}
		if v := lookup(kp.apiKeyEnv); v != "" {
			existing.APIKey = v
		}
		if v := lookup(kp.baseURLEnv); v != "" {
			existing.BaseURL = v
		}
		if v := lookup(kp.orgEnv); v != "" {
			existing.Organization = v
		}
		result[kp.name] = existing
	}

	for name, p := range result {
		// unresolved placeholders are treated as unset
		if strings.Contains(p.APIKey, "${") {
			p.APIKey = ""
			result[name] = p
		}
	}
	return result
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "sqlite", "postgresql", "mongodb":
	default:
		return fmt.Errorf("invalid storage type %q (valid: sqlite, postgresql, mongodb)", c.Storage.Type)
	}
	switch c.Workspace.Backend {
	case "supabase", "postgresql", "sqlite":
	default:
		return fmt.Errorf("invalid workspace backend %q (valid: supabase, postgresql, sqlite)", c.Workspace.Backend)
	}
	switch c.Cache.Type {
	case "local", "redis":
	default:
		return fmt.Errorf("invalid cache type %q (valid: local, redis)", c.Cache.Type)
	}
	if c.Cache.Type == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_TYPE is redis")
	}
	if c.Proxy.CompletionTimeout <= 0 {
		return fmt.Errorf("completion timeout must be positive")
	}
	if c.Proxy.StreamIdleTimeout <= 0 {
		return fmt.Errorf("stream idle timeout must be positive")
	}
	return nil
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandString replaces ${VAR} and ${VAR:-default} placeholders.
// Unresolved placeholders without a default are left untouched.
func expandString(s string) string {
	if s == "" {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := parts[1], parts[2] != "", parts[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func lookup(key string) string {
	if key == "" {
		return ""
	}
	return os.Getenv(key)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = f
	return nil
}

// setDuration accepts integer seconds or a Go duration string.
func setDuration(dst *time.Duration, key string) {
	*dst = httpclient.GetEnvDuration(key, *dst)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
