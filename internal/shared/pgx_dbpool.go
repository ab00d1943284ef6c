package shared

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	"github.com/ssherwood/coworkingservice/internal/config"
)

var passwordPattern = regexp.MustCompile(`(postgres(?:ql)?://[^:/@]+:)([^@]+)(@.+)`)

func InitializeDB(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, configErr := pgxPoolConfig()
	if configErr != nil {
		return nil, configErr
	}

	dbPool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if poolErr != nil {
		slog.Error("Unable to create pgx connection pool", config.ErrAttr(poolErr))
		return nil, poolErr
	}

	_ = InitPgxPoolMeter(dbPool)
	return dbPool, nil
}

// PingDB forces the pool to establish at least one working connection.
func PingDB(ctx context.Context, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, config.DBConnectTimeout)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		slog.Error("Unable to reach the catalog database", config.ErrAttr(err))
		return fmt.Errorf("ping database: %w", err)
	}

	slog.Info("Connected to the catalog database", slog.Int("totalConns", int(db.Stat().TotalConns())))
	return nil
}

// connectionURL returns DATABASE_URI when set, otherwise a URL assembled from the
// individual DB_* settings.
func connectionURL() string {
	if config.DBURL != "" {
		return config.DBURL
	}

	url := fmt.Sprintf("postgres://%s:%s@%s/%s", config.DBUserName, config.DBPassword, config.DBHostname, config.DBDatabase)
	options := mapToOptions(map[string]string{
		"sslmode":           config.DBSSLMode,
		"statement_timeout": fmt.Sprint(config.DBStatementTimeout.Milliseconds()),
		"load_balance":      config.DBYSQLLoadBalance,
		"topology_keys":     config.DBYSQLTopologyKeys,
	})
	if options != "" {
		url += "?" + options
	}
	return url
}

func pgxPoolConfig() (*pgxpool.Config, error) {
	url := connectionURL()

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		slog.Warn("Failed to parse pgxpool url", slog.String("url", maskPostgresPassword(url)), config.ErrAttr(err))
		return nil, err
	}

	poolConfig.MaxConns = config.DBMaxConns
	poolConfig.MinConns = config.DBMinConns
	poolConfig.MaxConnLifetime = config.DBMaxConnLifetime
	poolConfig.MaxConnLifetimeJitter = config.DBMaxConnLifetimeJitter
	poolConfig.HealthCheckPeriod = config.DBHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = config.DBConnectTimeout

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		slog.DebugContext(ctx, "Opened database connection", "host", conn.Config().Host)
		return nil
	}

	poolConfig.BeforeAcquire = defaultBeforeAcquireFn()
	poolConfig.AfterRelease = defaultAfterReleaseFn()
	poolConfig.BeforeClose = defaultBeforeCloseFn()

	if config.OTELTracerEnabled {
		poolConfig.ConnConfig.Tracer = NewQueryTracer([]attribute.KeyValue{
			semconv.DBSystemKey.String("postgresql"),
			semconv.DBConnectionStringKey.String(maskPostgresPassword(url)),
			semconv.ServerAddress(poolConfig.ConnConfig.Host),
			semconv.ServerPort(int(poolConfig.ConnConfig.Port)),
		})
	}

	return poolConfig, nil
}

func defaultBeforeAcquireFn() func(ctx context.Context, c *pgx.Conn) bool {
	return func(ctx context.Context, c *pgx.Conn) bool {
		slog.Debug("Before acquiring a database connection from the pool")
		return true
	}
}

// defaultAfterReleaseFn discards connections that still have a transaction open, which
// can only happen if a caller leaked one.
func defaultAfterReleaseFn() func(c *pgx.Conn) bool {
	return func(c *pgx.Conn) bool {
		if status := c.PgConn().TxStatus(); status != 'I' {
			slog.Warn("Discarding released connection with open transaction", "txStatus", string(status))
			return false
		}

		slog.Debug("After releasing database connection back to the pool")
		return true
	}
}

func defaultBeforeCloseFn() func(c *pgx.Conn) {
	return func(c *pgx.Conn) {
		slog.Debug("Closed database connection", "host", c.Config().Host)
	}
}

// mapToOptions renders non-empty params as a query string in key order.
func mapToOptions(params map[string]string) string {
	var pairs []string
	for key, value := range params {
		if value == "" {
			continue
		}
		pairs = append(pairs, fmt.Sprintf("%s=%s", key, value))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

func maskPostgresPassword(connURL string) string {
	return passwordPattern.ReplaceAllString(connURL, `${1}*****${3}`)
}
