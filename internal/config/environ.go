package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	// applies .env in its init, which runs before the settings below are read
	_ "github.com/ssherwood/coworkingservice/internal/config/dotenv"
)

var (
	Hostname, _        = os.Hostname()
	ServiceName        = GetEnv("SERVICE_NAME", "coworking-service")
	ServiceVersion     = GetEnv("SERVICE_VERSION", "1.0")
	ServerAddress      = GetEnv("SERVER_ADDRESS", ":8080")
	ServerWriteTimeout = GetEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerReadTimeout  = GetEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second)
	LogLevel           = GetEnv("LOG_LEVEL", "info")
)

// catalog store selection
const (
	CatalogDriverPostgres = "postgres"
	CatalogDriverSQLite   = "sqlite"
)

var (
	CatalogDriver = strings.ToLower(GetEnv("CATALOG_DRIVER", CatalogDriverPostgres))
	SQLitePath    = GetEnv("SQLITE_PATH", "coworking.db")
	CatalogCSV    = GetEnv("CATALOG_CSV_PATH", "coworking_spaces.csv")
)

var (
	DBURL                   = GetEnv("DATABASE_URI", "")
	DBUserName              = GetEnv("DB_USERNAME", "postgres")
	DBPassword              = GetEnv("DB_PASSWORD", "postgres")
	DBHostname              = GetEnv("DB_HOSTNAME", "localhost:5432")
	DBDatabase              = GetEnv("DB_DATABASE", "coworking_db")
	DBSSLMode               = GetEnv("DB_SSLMODE", "prefer")
	DBStatementTimeout      = GetEnvAsDuration("DB_STATEMENT_TIMEOUT", 10*time.Second)
	DBConnectTimeout        = GetEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second)
	DBMaxConns              = int32(GetEnvAsInt("DB_MAX_CONNS", 10))
	DBMinConns              = int32(GetEnvAsInt("DB_MIN_CONNS", 2))
	DBMaxConnLifetime       = GetEnvAsDuration("DB_MAX_CONN_LIFETIME", 4*time.Hour)
	DBMaxConnLifetimeJitter = GetEnvAsDuration("DB_MAX_CONN_LIFETIME_JITTER", 15*time.Minute)
	DBHealthCheckPeriod     = GetEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 10*time.Minute)
	DBYSQLLoadBalance       = GetEnv("DB_YSQL_LOAD_BALANCE", "")
	DBYSQLTopologyKeys      = GetEnv("DB_YSQL_TOPOLOGY_KEYS", "")
	DBYSQLFollowerReads     = GetEnvAsBool("DB_YSQL_FOLLOWER_READS", false)
)

var (
	OTELCollectorURL          = GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	OTELCompressor            = GetEnv("OTEL_EXPORTER_OTLP_COMPRESSION", "gzip")
	OTELExporterInsecure      = GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true)
	OTELMeterInterval         = GetEnvAsDuration("OTEL_METRIC_EXPORT_INTERVAL", 10*time.Second)
	OTELTraceSampleRatio      = GetEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1.0)
	OTELTracerEnabled         = GetEnvAsBool("OTEL_TRACES_ENABLED", false)
	OTELMetricsEnabled        = GetEnvAsBool("OTEL_METRICS_ENABLED", false)
	OTELLogsEnabled           = GetEnvAsBool("OTEL_LOGS_ENABLED", false)
	OTELLogsExporter          = strings.ToLower(GetEnv("OTEL_LOGS_EXPORTER", "otlp"))
	OTELTracerLogSQLStatement = GetEnvAsBool("OTEL_TRACES_LOG_SQL_STATEMENT", true)
	OTELTracerIncludeParams   = GetEnvAsBool("OTEL_TRACES_INCLUDE_PARAMS", false)
	OTELPrefixQuerySpanName   = GetEnvAsBool("OTEL_TRACES_PREFIX_QUERY_SPAN_NAME", true)
)

var (
	SlogServiceName    = slog.String("service", ServiceName)
	SlogServiceAddress = slog.String("address", ServerAddress)
)

func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// SlogLevel maps LogLevel onto a slog.Level, defaulting to info.
func SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func GetEnv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvAsInt(key string, fallback int) int {
	if value := GetEnv(key, ""); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

func GetEnvAsBool(key string, fallback bool) bool {
	if value := GetEnv(key, ""); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func GetEnvAsFloat(key string, fallback float64) float64 {
	if value := GetEnv(key, ""); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return fallback
}

// GetEnvAsDuration accepts Go duration strings ("5s", "2m"); a bare integer is read as seconds.
func GetEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := GetEnv(key, "")
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
