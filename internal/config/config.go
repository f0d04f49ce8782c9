package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	DownloadMaxDuration     time.Duration
	DownloadIdleTimeout     time.Duration
	StorageRoot             string
	MaxUploadSize           int64
	JWTSecret               string
	JWTAccessTTL            time.Duration
	CORSOrigins             []string
	RateLimitRPM            int
	DatabaseURL             string
	DBMaxConns              int32
	DBMinConns              int32
	DBConnectTimeout        time.Duration
	TrashStore              string
	TrashDBPath             string
	TrashRetention          time.Duration
	TrashPurgeInterval      time.Duration
	PrincipalsFile          string
	AuditLogFile            string
	ChecksumAlgorithm       string
	JobQueueSize            int
	LogLevel                string
	LogFormat               string
	MetricsEnabled          bool
}

const (
	TrashStoreBadger   = "badger"
	TrashStorePostgres = "postgres"
)

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 0),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DownloadMaxDuration:     getDuration("DOWNLOAD_MAX_DURATION", 2*time.Hour),
		DownloadIdleTimeout:     getDuration("DOWNLOAD_IDLE_TIMEOUT", 60*time.Second),
		StorageRoot:             getEnv("STORAGE_ROOT", "./data"),
		MaxUploadSize:           getInt64("MAX_UPLOAD_SIZE", 1073741824),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		DBConnectTimeout:        getDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		TrashStore:              strings.ToLower(getEnv("TRASH_STORE", TrashStoreBadger)),
		TrashDBPath:             getEnv("TRASH_DB_PATH", "./state/trash-db"),
		TrashRetention:          getDuration("TRASH_RETENTION", 30*24*time.Hour),
		TrashPurgeInterval:      getDuration("TRASH_PURGE_INTERVAL", time.Hour),
		PrincipalsFile:          getEnv("PRINCIPALS_FILE", "./principals.json"),
		AuditLogFile:            getEnv("AUDIT_LOG_FILE", "./state/audit.log"),
		ChecksumAlgorithm:       strings.ToLower(getEnv("CHECKSUM_ALGORITHM", "sha256")),
		JobQueueSize:            getInt("JOB_QUEUE_SIZE", 256),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "pretty"),
		MetricsEnabled:          getBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.StorageRoot == "" {
		return fmt.Errorf("STORAGE_ROOT cannot be empty")
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DownloadMaxDuration <= 0 || c.DownloadIdleTimeout <= 0 {
		return fmt.Errorf("DOWNLOAD_MAX_DURATION and DOWNLOAD_IDLE_TIMEOUT must be positive")
	}

	if c.TrashRetention <= 0 {
		return fmt.Errorf("TRASH_RETENTION must be positive")
	}

	switch c.TrashStore {
	case TrashStoreBadger:
	case TrashStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TRASH_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("TRASH_STORE must be %q or %q", TrashStoreBadger, TrashStorePostgres)
	}

	if c.DatabaseURL != "" && (c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("DB_MAX_CONNS must be positive and not below DB_MIN_CONNS")
	}

	if c.DatabaseURL == "" && strings.TrimSpace(c.PrincipalsFile) == "" {
		return fmt.Errorf("PRINCIPALS_FILE is required without DATABASE_URL")
	}

	if c.ChecksumAlgorithm != "sha256" && c.ChecksumAlgorithm != "blake2b" {
		return fmt.Errorf("CHECKSUM_ALGORITHM must be sha256 or blake2b")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
