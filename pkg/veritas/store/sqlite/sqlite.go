package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/veritas/pkg/veritas/internalerr"
	"github.com/cognicore/veritas/pkg/veritas/store"
)

// sqliteStore implements store.Sink using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates the
// schema if needed.
func OpenSQLite(ctx context.Context, path string) (store.Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS sweeps (
	id TEXT PRIMARY KEY,
	method TEXT NOT NULL,
	created_at TEXT NOT NULL,
	percentages TEXT NOT NULL,
	neighbors TEXT NOT NULL,
	trials INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_cells (
	sweep_id TEXT NOT NULL,
	percentage REAL NOT NULL,
	neighbors INTEGER NOT NULL,
	metric TEXT NOT NULL,
	mean REAL NOT NULL,
	std REAL NOT NULL,
	PRIMARY KEY(sweep_id, percentage, neighbors, metric),
	FOREIGN KEY(sweep_id) REFERENCES sweeps(id) ON DELETE CASCADE
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// RecordSweep stores a sweep and all of its cells in one transaction,
// replacing any sweep with the same id.
func (s *sqliteStore) RecordSweep(ctx context.Context, sw store.Sweep) error {
	if sw.ID == "" {
		return fmt.Errorf("record sweep: empty id: %w", internalerr.ErrInvalidInput)
	}
	percentages, err := json.Marshal(sw.Percentages)
	if err != nil {
		return err
	}
	neighbors, err := json.Marshal(sw.Neighbors)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sweeps (id, method, created_at, percentages, neighbors, trials)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	method=excluded.method,
	created_at=excluded.created_at,
	percentages=excluded.percentages,
	neighbors=excluded.neighbors,
	trials=excluded.trials;
`, sw.ID, sw.Method, sw.CreatedAt.UTC().Format(time.RFC3339Nano), string(percentages), string(neighbors), sw.Trials)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sweep_cells WHERE sweep_id = ?`, sw.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO sweep_cells (sweep_id, percentage, neighbors, metric, mean, std)
VALUES (?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range sw.Cells {
		if _, err := stmt.ExecContext(ctx, sw.ID, c.Percentage, c.Neighbors, c.Metric, c.Mean, c.Std); err != nil {
			return fmt.Errorf("insert cell (%g%%, k=%d, %s): %w", c.Percentage, c.Neighbors, c.Metric, err)
		}
	}

	return tx.Commit()
}

// Sweep loads one sweep with its cells.
func (s *sqliteStore) Sweep(ctx context.Context, id string) (store.Sweep, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, method, created_at, percentages, neighbors, trials
FROM sweeps
WHERE id = ?;
`, id)
	sw, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Sweep{}, fmt.Errorf("sweep %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Sweep{}, err
	}

	sw.Cells, err = s.loadCells(ctx, id)
	if err != nil {
		return store.Sweep{}, err
	}
	return sw, nil
}

// Sweeps lists the most recent sweeps first, cells included.
func (s *sqliteStore) Sweeps(ctx context.Context, limit int) ([]store.Sweep, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, method, created_at, percentages, neighbors, trials
FROM sweeps
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sweeps []store.Sweep
	for rows.Next() {
		sw, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range sweeps {
		cells, err := s.loadCells(ctx, sweeps[i].ID)
		if err != nil {
			return nil, err
		}
		sweeps[i].Cells = cells
	}
	return sweeps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(row scanner) (store.Sweep, error) {
	var (
		sw                     store.Sweep
		createdAt              string
		percentages, neighbors string
	)
	if err := row.Scan(&sw.ID, &sw.Method, &createdAt, &percentages, &neighbors, &sw.Trials); err != nil {
		return store.Sweep{}, err
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return store.Sweep{}, fmt.Errorf("sweep %s: created_at: %w", sw.ID, err)
	}
	sw.CreatedAt = t
	if err := json.Unmarshal([]byte(percentages), &sw.Percentages); err != nil {
		return store.Sweep{}, fmt.Errorf("sweep %s: percentages: %w", sw.ID, err)
	}
	if err := json.Unmarshal([]byte(neighbors), &sw.Neighbors); err != nil {
		return store.Sweep{}, fmt.Errorf("sweep %s: neighbors: %w", sw.ID, err)
	}
	return sw, nil
}

func (s *sqliteStore) loadCells(ctx context.Context, id string) ([]store.Cell, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT percentage, neighbors, metric, mean, std
FROM sweep_cells
WHERE sweep_id = ?
ORDER BY percentage, neighbors, metric;
`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []store.Cell
	for rows.Next() {
		var c store.Cell
		if err := rows.Scan(&c.Percentage, &c.Neighbors, &c.Metric, &c.Mean, &c.Std); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
