package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DB        DBConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Google    GoogleConfig
	Telegram  TelegramConfig
	Audit     AuditConfig
	Admin     AdminSeedConfig
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

// MinIOConfig also selects the object store: Driver "memory" keeps objects
// in process, which is only meant for development.
type MinIOConfig struct {
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port        string
	FrontendURL string
	BodyLimitMB int
}

// RedisConfig is optional: with an empty Addr the server falls back to the
// in-process realtime hub and login rate limiting is disabled.
type RedisConfig struct {
	Addr     string
	Password string
	Prefix   string
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
}

type GoogleConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	RedirectURL  string
	IssuerURL    string
	Scopes       string
}

func (g GoogleConfig) ClientConfig(_ context.Context) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		RedirectURL:  g.RedirectURL,
		Scopes:       splitScopes(g.Scopes),
		Endpoint:     google.Endpoint,
	}
}

type TelegramConfig struct {
	BotToken    string
	AdminChatID int64
}

func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.AdminChatID != 0
}

type AuditConfig struct {
	ExportInterval time.Duration
	QueueSize      int
}

type AdminSeedConfig struct {
	Name     string
	Email    string
	Password string
}

// fileValues holds the CONFIG_FILE overlay. Real environment variables win over it.
var fileValues = map[string]string{}

// Load builds the configuration from the environment, optionally layered over
// a YAML file named by CONFIG_FILE whose keys are the environment variable names.
func Load() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		values, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		fileValues = values
	}

	cfg := &Config{
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "pixelart"),
			Password:   getEnv("DB_PASSWORD", "pixelart_secret"),
			Name:       getEnv("DB_NAME", "pixelart"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "pixelart.db"),
		},
		MinIO: MinIOConfig{
			Driver:    getEnv("STORAGE_DRIVER", "minio"),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "pixelart"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "pixelart_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "pixelart"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
			Region:    getEnv("MINIO_REGION", ""),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
			BodyLimitMB: getEnvAsInt("SERVER_BODY_LIMIT_MB", 50),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			Prefix:   getEnv("REDIS_PREFIX", "pixelart"),
		},
		RateLimit: RateLimitConfig{
			LoginLimit:  getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			LoginWindow: getEnvAsDuration("LOGIN_RATE_WINDOW", time.Minute),
		},
		Google: GoogleConfig{
			Enabled:      getEnvAsBool("GOOGLE_ENABLED", false),
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
			IssuerURL:    getEnv("GOOGLE_ISSUER_URL", "https://accounts.google.com"),
			Scopes:       getEnv("GOOGLE_SCOPES", "openid,email,profile"),
		},
		Telegram: TelegramConfig{
			BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminChatID: getEnvAsInt64("TELEGRAM_ADMIN_CHAT_ID", 0),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", time.Hour),
			QueueSize:      getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
		},
		Admin: AdminSeedConfig{
			Name:     getEnv("ADMIN_NAME", "Administrator"),
			Email:    getEnv("ADMIN_EMAIL", "admin@pixelart.local"),
			Password: getEnv("ADMIN_PASSWORD", "admin12345"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a flat YAML mapping of variable names to values.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		values[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprintf("%v", value)
	}
	return values, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q (postgres or sqlite)", c.DB.Driver)
	}
	switch c.MinIO.Driver {
	case "minio", "memory":
	default:
		return fmt.Errorf("config: unsupported STORAGE_DRIVER %q (minio or memory)", c.MinIO.Driver)
	}
	if c.Google.Enabled && (c.Google.ClientID == "" || c.Google.ClientSecret == "") {
		return fmt.Errorf("config: GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET are required when GOOGLE_ENABLED is set")
	}
	if c.RateLimit.LoginLimit <= 0 || c.RateLimit.LoginWindow <= 0 {
		return fmt.Errorf("config: LOGIN_RATE_LIMIT and LOGIN_RATE_WINDOW must be positive")
	}
	if c.Audit.ExportInterval <= 0 {
		return fmt.Errorf("config: AUDIT_EXPORT_INTERVAL must be positive")
	}
	return nil
}

func lookup(key string) (string, bool) {
	if value, ok := os.LookupEnv(key); ok {
		return value, true
	}
	value, ok := fileValues[key]
	return value, ok
}

func getEnv(key, fallback string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := lookup(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func splitScopes(raw string) []string {
	var scopes []string
	for _, scope := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}
