//go:build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a Store backed by a SQLite database file
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (id, name, seed, config, started)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			seed = excluded.seed,
			config = excluded.config,
			started = excluded.started
	`, run.ID, run.Name, int64(run.Seed), run.Config,
		run.Started.UTC().UnixNano())
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return Run{}, false, err
	}

	var (
		run     Run
		seed    int64
		started int64
	)
	err = db.QueryRowContext(ctx, `
		SELECT id, name, seed, config, started FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Name, &seed, &run.Config, &started)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("get run %s: %w", id, err)
	}
	run.Seed = uint64(seed)
	run.Started = time.Unix(0, started).UTC()
	return run, true, nil
}

func (s *SQLiteStore) AppendGeneration(ctx context.Context, record GenerationRecord) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO generations (run_id, number, num_timesteps, episode_num,
			mean_fitness, max_fitness, evaluated, eval_mean, eval_std)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.RunID, record.Number, record.NumTimesteps, record.EpisodeNum,
		record.MeanFitness, record.MaxFitness, record.Evaluated,
		record.EvalMean, record.EvalStd)
	if err != nil {
		return fmt.Errorf("append generation %d of run %s: %w",
			record.Number, record.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) ListGenerations(ctx context.Context, runID string) ([]GenerationRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT run_id, number, num_timesteps, episode_num, mean_fitness,
			max_fitness, evaluated, eval_mean, eval_std
		FROM generations WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list generations of run %s: %w", runID, err)
	}
	defer rows.Close()

	records := []GenerationRecord{}
	for rows.Next() {
		var r GenerationRecord
		if err := rows.Scan(&r.RunID, &r.Number, &r.NumTimesteps,
			&r.EpisodeNum, &r.MeanFitness, &r.MaxFitness, &r.Evaluated,
			&r.EvalMean, &r.EvalStd); err != nil {
			return nil, fmt.Errorf("list generations of run %s: %w", runID,
				err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			seed INTEGER NOT NULL,
			config BLOB,
			started INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS generations (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			number INTEGER NOT NULL,
			num_timesteps INTEGER NOT NULL,
			episode_num INTEGER NOT NULL,
			mean_fitness REAL NOT NULL,
			max_fitness REAL NOT NULL,
			evaluated BOOLEAN NOT NULL,
			eval_mean REAL NOT NULL,
			eval_std REAL NOT NULL
		);
	`)
	return err
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
