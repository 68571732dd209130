// Package store persists annotations and prediction runs in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Noofbiz/sceneforecast/datasets"
	"github.com/Noofbiz/sceneforecast/prediction"
)

// schema.sql creates the annotation, run and prediction tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store wraps a SQLite database.
type Store struct {
	*sql.DB
}

// Run describes one batch of stored predictions.
type Run struct {
	ID        string
	Model     string
	Note      string
	CreatedAt time.Time
	Count     int
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %v", err)
	}
	return &Store{db}, nil
}

// ImportAnnotations upserts anns in a single transaction and returns the
// number of rows written.
func (s *Store) ImportAnnotations(ctx context.Context, anns []datasets.Annotation) (n int, err error) {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO annotations (token, instance_token, sample_token, scene_token, timestamp_us, x, y, yaw, width, length, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET
			instance_token = excluded.instance_token,
			sample_token = excluded.sample_token,
			scene_token = excluded.scene_token,
			timestamp_us = excluded.timestamp_us,
			x = excluded.x,
			y = excluded.y,
			yaw = excluded.yaw,
			width = excluded.width,
			length = excluded.length,
			category = excluded.category
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare annotation insert: %v", err)
	}
	defer stmt.Close()

	for _, a := range anns {
		token := a.Token
		if token == "" {
			token = datasets.JoinToken(a.Instance, a.Sample)
		}
		if _, err = stmt.ExecContext(ctx, token, a.Instance, a.Sample, a.Scene, a.Timestamp,
			a.X, a.Y, a.Yaw, a.Width, a.Length, a.Category); err != nil {
			return 0, fmt.Errorf("failed to insert annotation %s: %v", token, err)
		}
		n++
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

// Annotations returns every stored annotation ordered by instance and time.
func (s *Store) Annotations(ctx context.Context) ([]datasets.Annotation, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT token, instance_token, sample_token, scene_token, timestamp_us, x, y, yaw, width, length, category
		FROM annotations
		ORDER BY instance_token, timestamp_us
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %v", err)
	}
	defer rows.Close()

	var out []datasets.Annotation
	for rows.Next() {
		var a datasets.Annotation
		if err := rows.Scan(&a.Token, &a.Instance, &a.Sample, &a.Scene, &a.Timestamp,
			&a.X, &a.Y, &a.Yaw, &a.Width, &a.Length, &a.Category); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %v", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateRun registers a new prediction run and returns its id.
func (s *Store) CreateRun(ctx context.Context, model, note string) (string, error) {
	id := uuid.NewString()
	if _, err := s.ExecContext(ctx, `INSERT INTO runs (id, model, note) VALUES (?, ?, ?)`, id, model, note); err != nil {
		return "", fmt.Errorf("failed to create run: %v", err)
	}
	return id, nil
}

func (s *Store) runExists(ctx context.Context, runID string) error {
	var one int
	err := s.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return err
}

// SavePredictions stores preds under runID, replacing earlier records for
// the same instance and sample.
func (s *Store) SavePredictions(ctx context.Context, runID string, preds []*prediction.Prediction) (err error) {
	if err := s.runExists(ctx, runID); err != nil {
		return err
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO predictions (run_id, instance_token, sample_token, payload)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare prediction insert: %v", err)
	}
	defer stmt.Close()

	for _, p := range preds {
		var payload []byte
		payload, err = json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode prediction %s: %w", p.Token(), err)
		}
		if _, err = stmt.ExecContext(ctx, runID, p.Instance, p.Sample, string(payload)); err != nil {
			return fmt.Errorf("failed to insert prediction %s: %v", p.Token(), err)
		}
	}
	return tx.Commit()
}

// LoadPredictions returns the predictions of runID in insertion order.
func (s *Store) LoadPredictions(ctx context.Context, runID string) ([]*prediction.Prediction, error) {
	if err := s.runExists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.QueryContext(ctx, `SELECT payload FROM predictions WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %v", err)
	}
	defer rows.Close()

	var out []*prediction.Prediction
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %v", err)
		}
		p := new(prediction.Prediction)
		if err := json.Unmarshal([]byte(payload), p); err != nil {
			return nil, fmt.Errorf("failed to decode stored prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists every run, oldest first, with its prediction count.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT r.id, r.model, r.note, r.created_at, COUNT(p.run_id)
		FROM runs r
		LEFT JOIN predictions p ON p.run_id = r.id
		GROUP BY r.id
		ORDER BY r.created_at, r.rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %v", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			created float64
		)
		if err := rows.Scan(&r.ID, &r.Model, &r.Note, &created, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan run: %v", err)
		}
		sec := int64(created)
		r.CreatedAt = time.Unix(sec, int64((created-float64(sec))*1e9)).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
