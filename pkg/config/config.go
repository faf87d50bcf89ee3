package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"safetrain-backend/pkg/database"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config 应用配置结构
type Config struct {
	// 环境配置
	Environment string
	Port        string

	// 数据库配置
	DatabaseDriver string
	PostgresDSN    string
	SQLitePath     string
	SupabaseURL    string
	SupabaseKey    string

	// 缓存配置
	RedisURL    string
	OrgCacheTTL time.Duration

	// JWT配置
	JWTSecret string

	// Plan table override (TOML); empty uses the embedded table.
	PlansFile string

	// CORS配置
	AllowedOrigins []string

	// HTTP
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// 日志与调试配置
	Debug     bool
	LogLevel  string
	LogFormat string

	// .env files that exist but could not be parsed
	envFileErrors []string
}

// LoadConfig 加载配置（支持本地和Vercel环境）
func LoadConfig() *Config {
	// 根据环境加载对应的 .env 文件
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development" // 默认开发环境
	}

	// 按优先级加载环境文件，已存在的环境变量不会被覆盖
	var envFileErrors []string
	switch env {
	case "production":
		envFileErrors = loadEnvFiles(".env.production", ".env")
	case "test":
		envFileErrors = loadEnvFiles(".env.test")
	default:
		envFileErrors = loadEnvFiles(".env.local", ".env")
	}

	config := &Config{
		// 默认值
		Environment:    getEnvWithDefault("ENVIRONMENT", "development"),
		Port:           getEnvWithDefault("PORT", "3000"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(os.Getenv("DATABASE_DRIVER"))),
		JWTSecret:      getEnvWithDefault("JWT_SECRET", defaultJWTSecret),
		Debug:          getEnvBool("DEBUG", false),
		LogLevel:       getEnvWithDefault("LOG_LEVEL", "info"),
		OrgCacheTTL:    getEnvDuration("ORG_CACHE_TTL", 5*time.Minute),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
		MaxBodyBytes:   getEnvInt64("MAX_BODY_BYTES", 1<<20),
		PlansFile:      strings.TrimSpace(os.Getenv("PLANS_FILE")),

		envFileErrors: envFileErrors,
	}

	// 数据库配置
	// Trim whitespace to avoid trailing spaces/newlines from env sources
	config.PostgresDSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	config.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	config.SupabaseURL = strings.TrimSpace(os.Getenv("SUPABASE_URL"))
	config.SupabaseKey = strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_KEY"))
	config.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))

	// CORS配置
	allowedOrigins := getEnvWithDefault("ALLOWED_ORIGINS", "*")
	if allowedOrigins == "*" {
		config.AllowedOrigins = []string{"*"}
	} else {
		for _, o := range strings.Split(allowedOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}

	// 环境特定配置
	if config.IsProduction() {
		// 生产环境关闭调试
		config.Debug = false
		config.LogFormat = getEnvWithDefault("LOG_FORMAT", "json")
	} else {
		config.LogFormat = getEnvWithDefault("LOG_FORMAT", "console")
	}
	if config.Debug {
		config.LogLevel = "debug"
	}

	return config
}

// Cached config (initialized once per cold start)
var (
	cachedConfig *Config
	configOnce   sync.Once
)

// GetCached returns the process-wide cached Config.
// On serverless (Vercel), it initializes once per cold start and
// reuses it across warm invocations, avoiding per-request parsing.
func GetCached() *Config {
	configOnce.Do(func() {
		cachedConfig = LoadConfig()
	})
	return cachedConfig
}

// Database returns the store settings.
func (c *Config) Database() database.DatabaseConfig {
	return database.DatabaseConfig{
		Driver:      c.DatabaseDriver,
		PostgresDSN: c.PostgresDSN,
		SQLitePath:  c.SQLitePath,
		SupabaseURL: c.SupabaseURL,
		SupabaseKey: c.SupabaseKey,
		Debug:       c.Debug,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	// 验证端口
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	// 验证JWT密钥
	if c.usesDefaultSecret() && c.IsProduction() {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}

	// 验证数据库配置
	switch c.Database().ResolveDriver() {
	case database.DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case database.DriverSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("DATABASE_DRIVER=supabase requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
	case database.DriverSQLite:
	case database.DriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("the memory store cannot be used in production")
		}
	case "":
		return fmt.Errorf("数据库配置不完整：请配置 POSTGRES_DSN、SUPABASE_URL+SUPABASE_SERVICE_KEY 或 SQLITE_PATH")
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	return nil
}

// Warnings lists settings that are allowed but worth logging at startup.
func (c *Config) Warnings() []string {
	out := append([]string(nil), c.envFileErrors...)
	if c.usesDefaultSecret() {
		out = append(out, "Using default JWT secret (not recommended for production)")
	}
	if c.IsProduction() && c.Database().ResolveDriver() == database.DriverSQLite {
		out = append(out, "Production environment using a local SQLite database. Please configure POSTGRES_DSN or SUPABASE_URL+SUPABASE_SERVICE_KEY")
	}
	return out
}

func (c *Config) usesDefaultSecret() bool {
	return c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// 辅助函数

// getEnvWithDefault 获取环境变量，如果不存在则使用默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadEnvFiles 加载 .env 文件到环境变量，不存在的文件跳过，解析失败的返回说明
func loadEnvFiles(filenames ...string) []string {
	var failures []string
	for _, f := range filenames {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load never overrides variables that are already set
		if err := godotenv.Load(f); err != nil {
			failures = append(failures, fmt.Sprintf("Failed to load %s: %v", f, err))
		}
	}
	return failures
}
