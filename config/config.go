package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Supabase SupabaseConfig
	Registry RegistryConfig
	Storage  StorageConfig
	Limits   LimitsConfig
	Cleanup  CleanupConfig
	Sync     SyncConfig
	App      AppConfig
}

type ServerConfig struct {
	Port             string
	LoginRedirectURL string
	AllowedOrigins   []string
}

type BackendConfig struct {
	URL                   string
	SharedSecret          string
	DefaultUILang         string
	DefaultAcceptLanguage string
}

type SupabaseConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
}

type RegistryConfig struct {
	Backend       string // memory | postgres | redis
	DSN           string
	MaxConns      int
	MinConns      int
	RedisAddr     string
	RedisPassword string
}

type StorageConfig struct {
	Backend  string // supabase | s3
	Bucket   string
	S3Bucket string
	S3Prefix string
}

type LimitsConfig struct {
	MaxUploadSizeMB    int
	MaxProjectAgeHours int
}

type CleanupConfig struct {
	CronSecret string
	Schedule   string
}

type SyncConfig struct {
	Interval   time.Duration
	MaxImports int
}

type AppConfig struct {
	Environment       string
	Version           string
	AllowAnonUI       bool
	AllowAnonCreate   bool
	DevFallbackUserID string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			LoginRedirectURL: getEnv("LOGIN_REDIRECT_URL", "/login"),
			AllowedOrigins:   splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Backend: BackendConfig{
			URL:                   strings.TrimRight(getEnv("OPENREFINE_BACKEND_URL", ""), "/"),
			SharedSecret:          getEnv("OPENREFINE_SHARED_SECRET", ""),
			DefaultUILang:         getEnv("OPENREFINE_DEFAULT_UI_LANG", ""),
			DefaultAcceptLanguage: getEnv("OPENREFINE_DEFAULT_ACCEPT_LANGUAGE", ""),
		},
		Supabase: SupabaseConfig{
			URL:            strings.TrimRight(getEnv("SUPABASE_URL", getEnv("NEXT_PUBLIC_SUPABASE_URL", "")), "/"),
			AnonKey:        getEnv("SUPABASE_ANON_KEY", getEnv("NEXT_PUBLIC_SUPABASE_ANON_KEY", "")),
			ServiceRoleKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),
		},
		Registry: RegistryConfig{
			Backend:       getEnv("REGISTRY_BACKEND", "memory"),
			DSN:           getEnv("DB_DSN", ""),
			MaxConns:      getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:      getEnvAsInt("DB_MIN_CONNS", 2),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "supabase"),
			Bucket:   getEnv("OPENREFINE_PROJECT_BUCKET", "openrefine-projects"),
			S3Bucket: getEnv("S3_BUCKET", ""),
			S3Prefix: getEnv("S3_PREFIX", ""),
		},
		Limits: LimitsConfig{
			MaxUploadSizeMB:    getEnvAsInt("MAX_UPLOAD_SIZE_MB", 100),
			MaxProjectAgeHours: getEnvAsInt("MAX_PROJECT_AGE_HOURS", 24),
		},
		Cleanup: CleanupConfig{
			CronSecret: getEnv("CRON_SECRET", ""),
			Schedule:   getEnv("CLEANUP_SCHEDULE", "0 0 * * * *"),
		},
		Sync: SyncConfig{
			Interval:   time.Duration(getEnvAsInt("SYNC_INTERVAL_SECONDS", 30)) * time.Second,
			MaxImports: getEnvAsInt("SYNC_MAX_IMPORTS", 3),
		},
		App: AppConfig{
			Environment:       getEnv("APP_ENV", "development"),
			Version:           getEnv("APP_VERSION", "1.0.0"),
			AllowAnonUI:       getEnvAsBool("ALLOW_ANON_OPENREFINE_UI", false),
			AllowAnonCreate:   getEnvAsBool("ALLOW_ANON_PROJECT_CREATE", false),
			DevFallbackUserID: getEnv("DEV_FALLBACK_USER_ID", "local-dev-user"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Backend.URL == "" {
		return fmt.Errorf("OPENREFINE_BACKEND_URL is required")
	}
	if c.Backend.SharedSecret == "" {
		return fmt.Errorf("OPENREFINE_SHARED_SECRET is required")
	}
	if c.Supabase.URL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("SUPABASE_ANON_KEY is required")
	}

	switch c.Registry.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Registry.DSN == "" {
			return fmt.Errorf("DB_DSN is required when REGISTRY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of memory, postgres, redis")
	}

	switch c.Storage.Backend {
	case "supabase":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be supabase or s3")
	}

	if c.Limits.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be a positive integer")
	}
	if c.Limits.MaxProjectAgeHours <= 0 {
		return fmt.Errorf("MAX_PROJECT_AGE_HOURS must be a positive integer")
	}

	return nil
}

// MaxUploadBytes returns the configured upload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Limits.MaxUploadSizeMB) * 1024 * 1024
}

// MaxProjectAge returns the staleness threshold for runtime projects.
func (c *Config) MaxProjectAge() time.Duration {
	return time.Duration(c.Limits.MaxProjectAgeHours) * time.Hour
}

// DefaultLang resolves the fallback UI language for load-language requests.
// An explicit setting wins, then the first tag of the configured
// Accept-Language value, then "ja".
func (c *Config) DefaultLang() string {
	if lang := strings.TrimSpace(c.Backend.DefaultUILang); lang != "" {
		return lang
	}
	accept := strings.TrimSpace(c.Backend.DefaultAcceptLanguage)
	if accept != "" {
		first := strings.TrimSpace(strings.Split(accept, ",")[0])
		first = strings.TrimSpace(strings.Split(first, ";")[0])
		if first != "" {
			return strings.FieldsFunc(first, func(r rune) bool { return r == '-' || r == '_' })[0]
		}
	}
	return "ja"
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return valueStr == "true" || valueStr == "1"
}
