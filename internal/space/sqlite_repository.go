package space

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS coworking_spaces (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    name              TEXT    NOT NULL CHECK (length(name) <= 100),
    opening_time      TEXT    NOT NULL,
    closing_time      TEXT    NOT NULL,
    price             REAL    NOT NULL,
    food_availability INTEGER NOT NULL,
    latitude          REAL    NOT NULL,
    longitude         REAL    NOT NULL,
    address           TEXT    NOT NULL CHECK (length(address) <= 200)
)`

// SQLiteRepository keeps the catalog in a single SQLite file. Replaces are serialized
// in-process; WAL mode lets readers keep the last committed catalog while one runs.
type SQLiteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteSchema)
	return storageErr("create schema", err)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*CoworkingSpace, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM coworking_spaces WHERE id = ?`, id)
	s, err := scanSQLiteSpace(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, storageErr("get", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]CoworkingSpace, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM coworking_spaces ORDER BY id`)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()

	spaces := make([]CoworkingSpace, 0)
	for rows.Next() {
		s, err := scanSQLiteSpace(rows)
		if err != nil {
			return nil, storageErr("list", err)
		}
		spaces = append(spaces, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return spaces, nil
}

func (r *SQLiteRepository) ReplaceAll(ctx context.Context, spaces []CoworkingSpace) error {
	if err := validateAll(spaces); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("replace", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM coworking_spaces`); err != nil {
		return storageErr("replace", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO coworking_spaces (
        name, opening_time, closing_time, price, food_availability, latitude, longitude, address
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return storageErr("replace", err)
	}
	defer stmt.Close()

	for i, s := range spaces {
		_, err := stmt.ExecContext(ctx, s.Name, s.OpeningTime.String(), s.ClosingTime.String(), s.Price,
			s.FoodAvailability, s.Latitude, s.Longitude, s.Address)
		if err != nil {
			return storageErr("replace", fmt.Errorf("insert row %d: %w", i+1, err))
		}
	}

	return storageErr("replace", tx.Commit())
}

type sqliteScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSpace(row sqliteScanner) (CoworkingSpace, error) {
	var (
		s                CoworkingSpace
		opening, closing string
	)
	err := row.Scan(&s.ID, &s.Name, &opening, &closing, &s.Price, &s.FoodAvailability, &s.Latitude, &s.Longitude, &s.Address)
	if err != nil {
		return CoworkingSpace{}, err
	}
	if s.OpeningTime, err = ParseTimeOfDay(opening); err != nil {
		return CoworkingSpace{}, fmt.Errorf("opening_time of id %d: %w", s.ID, err)
	}
	if s.ClosingTime, err = ParseTimeOfDay(closing); err != nil {
		return CoworkingSpace{}, fmt.Errorf("closing_time of id %d: %w", s.ID, err)
	}
	return s, nil
}
