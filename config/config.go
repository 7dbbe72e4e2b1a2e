package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	MaxConcurrency int
	RateLimitMs    int
	RetryCount     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	PageDelay      time.Duration
	FetchMode      string
	ChromeBin      string
	UserAgent      string

	OglasiStartPage int
	OglasiEndPage   int
	OglasiBatchSize int

	SourcesFile string
	RawCSVPath  string

	LogLevel  string
	LogFormat string

	Sources *Sources
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Load reads the given .env files (".env" when none) and returns a populated Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres123"),
		DBName:     getEnv("DB_NAME", "real_estate"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "./data/real_estate.db"),

		MaxConcurrency: getEnvInt("MAX_CONCURRENT_REQUESTS", 5),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 0),
		RetryCount:     getEnvInt("RETRY_COUNT", 3),
		RetryDelay:     getEnvDuration("RETRY_DELAY", 5*time.Second),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 25*time.Second),
		PageDelay:      getEnvDuration("PAGE_DELAY", 500*time.Millisecond),
		FetchMode:      getEnv("FETCH_MODE", "http"),
		ChromeBin:      getEnv("CHROME_BIN", ""),
		UserAgent:      getEnv("USER_AGENT", defaultUserAgent),

		OglasiStartPage: getEnvInt("OGLASI_START_PAGE", 1),
		OglasiEndPage:   getEnvInt("OGLASI_END_PAGE", 1800),
		OglasiBatchSize: getEnvInt("OGLASI_BATCH_SIZE", 100),

		SourcesFile: getEnv("SOURCES_FILE", ""),
		RawCSVPath:  getEnv("RAW_CSV_PATH", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	sources := DefaultSources()
	if cfg.SourcesFile != "" {
		var err error
		sources, err = LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
	}
	cfg.Sources = sources

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.FetchMode {
	case "http", "browser":
	default:
		return fmt.Errorf("config: FETCH_MODE must be http or browser, got %q", c.FetchMode)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: MAX_CONCURRENT_REQUESTS must be positive, got %d", c.MaxConcurrency)
	}
	if c.RetryCount < 1 {
		return fmt.Errorf("config: RETRY_COUNT must be positive, got %d", c.RetryCount)
	}
	if c.OglasiBatchSize < 1 || c.OglasiStartPage < 1 || c.OglasiEndPage < c.OglasiStartPage {
		return fmt.Errorf("config: invalid oglasi page window %d..%d (batch %d)",
			c.OglasiStartPage, c.OglasiEndPage, c.OglasiBatchSize)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("5s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
