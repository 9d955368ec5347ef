package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Database drivers understood by Load.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	DBDriver    string
	DatabaseURL string

	JWTSecret          string
	AccessTokenMinutes int
	EncryptKey         string
	LegacyEncryptKeys  []string

	StorageDir     string
	PublicBaseURL  string
	MaxUploadBytes int64

	RedisURL string

	CORSOrigins        []string
	Debug              bool
	MaxMessagesPerChat int
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "Huddle API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseURL: getEnv("DATABASE_URL", "file:huddle.db?_pragma=foreign_keys(1)&_time_format=sqlite"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptKeys:  getEnvAsList("LEGACY_ENCRYPTION_KEYS", nil),

		StorageDir:     getEnv("STORAGE_DIR", "storage"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_MB", 10)) << 20,

		RedisURL: os.Getenv("REDIS_URL"),

		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		Debug:              getEnvAsBool("DEBUG", true),
		MaxMessagesPerChat: getEnvAsInt("MAX_MESSAGES_PER_CHAT", 5000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return cfg, nil
}

// Validate checks required settings.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.EncryptKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
