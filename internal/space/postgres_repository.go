package space

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgtype"
	"github.com/yugabyte/pgx/v5/pgxpool"
)

// postgresSchema is applied statement by statement. The single row in
// coworking_catalog_lock is what ReplaceAll locks to serialize replaces; row locks work
// on stock YugabyteDB, where advisory locks are not generally available.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS coworking_spaces (
    id                BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name              VARCHAR(100)     NOT NULL,
    opening_time      TIME             NOT NULL,
    closing_time      TIME             NOT NULL,
    price             DOUBLE PRECISION NOT NULL,
    food_availability BOOLEAN          NOT NULL,
    latitude          DOUBLE PRECISION NOT NULL,
    longitude         DOUBLE PRECISION NOT NULL,
    address           VARCHAR(200)     NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS coworking_catalog_lock (id INTEGER PRIMARY KEY)`,
	`INSERT INTO coworking_catalog_lock (id) VALUES (1) ON CONFLICT (id) DO NOTHING`,
}

var errCatalogLockMissing = errors.New("catalog lock row missing (schema not initialized)")

type PostgresRepository struct {
	db            *pgxpool.Pool
	followerReads bool
}

// NewPostgresRepository wraps a pool. With followerReads set, reads run in read-only
// transactions with yb_read_from_followers enabled (YugabyteDB only).
func NewPostgresRepository(db *pgxpool.Pool, followerReads bool) *PostgresRepository {
	return &PostgresRepository{db: db, followerReads: followerReads}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return storageErr("create schema", err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*CoworkingSpace, error) {
	var found CoworkingSpace
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		var err error
		found, err = scanPostgresSpace(tx.QueryRow(ctx,
			`select `+selectColumns+`
               from coworking_spaces
              where id=$1`, id))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", err)
	}

	return &found, nil
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]CoworkingSpace, error) {
	var spaces []CoworkingSpace
	err := r.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `select `+selectColumns+` from coworking_spaces order by id`)
		if err != nil {
			return err
		}
		spaces, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (CoworkingSpace, error) {
			return scanPostgresSpace(row)
		})
		return err
	})
	if err != nil {
		return nil, storageErr("list", err)
	}

	return spaces, nil
}

// ReplaceAll deletes and reloads the table inside one transaction. Readers keep seeing
// the previous snapshot until commit. Concurrent replaces queue on the catalog lock row;
// an engine that reports a conflict instead of waiting fails the later one with a
// StorageError, leaving the winner's catalog in place.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, spaces []CoworkingSpace) error {
	if err := validateAll(spaces); err != nil {
		return err
	}

	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		locked, err := tx.Exec(ctx, "select id from coworking_catalog_lock where id = 1 for update")
		if err != nil {
			return err
		}
		if locked.RowsAffected() != 1 {
			return errCatalogLockMissing
		}

		tag, err := tx.Exec(ctx, "delete from coworking_spaces")
		if err != nil {
			return err
		}
		slog.Debug("Cleared catalog inside replace transaction", slog.Int64("rows", tag.RowsAffected()))

		copied, err := tx.CopyFrom(ctx, pgx.Identifier{tableName}, insertColumns,
			pgx.CopyFromSlice(len(spaces), func(i int) ([]any, error) {
				s := spaces[i]
				return []any{
					s.Name, postgresTime(s.OpeningTime), postgresTime(s.ClosingTime), s.Price,
					s.FoodAvailability, s.Latitude, s.Longitude, s.Address,
				}, nil
			}))
		if err != nil {
			return err
		}
		if copied != int64(len(spaces)) {
			return fmt.Errorf("copied %d of %d rows", copied, len(spaces))
		}
		return nil
	})

	return storageErr("replace", err)
}

func (r *PostgresRepository) readOnly(ctx context.Context, fn func(pgx.Tx) error) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if r.followerReads {
		// must be set BEFORE the BEGIN TX (and reset before the connection goes back)
		if _, err := conn.Exec(ctx, "set yb_read_from_followers = true"); err != nil {
			return err
		}
		defer func() {
			_, _ = conn.Exec(context.Background(), "set yb_read_from_followers = false")
		}()
	}

	return pgx.BeginTxFunc(ctx, conn, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func scanPostgresSpace(row pgx.Row) (CoworkingSpace, error) {
	var (
		s                CoworkingSpace
		opening, closing pgtype.Time
	)
	err := row.Scan(&s.ID, &s.Name, &opening, &closing, &s.Price, &s.FoodAvailability, &s.Latitude, &s.Longitude, &s.Address)
	if err != nil {
		return CoworkingSpace{}, err
	}
	s.OpeningTime = timeOfDayFromPostgres(opening)
	s.ClosingTime = timeOfDayFromPostgres(closing)
	return s, nil
}

// timeOfDayFromPostgres drops sub-second precision; TIME's 24:00:00 becomes 00:00:00.
func timeOfDayFromPostgres(t pgtype.Time) TimeOfDay {
	return TimeOfDayFromSeconds(t.Microseconds / 1_000_000)
}

func postgresTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Seconds() * 1_000_000, Valid: true}
}
