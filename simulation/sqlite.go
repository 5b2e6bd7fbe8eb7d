package simulation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS simulations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	instruction TEXT NOT NULL,
	participant_user_ids TEXT NOT NULL,
	status TEXT NOT NULL,
	created_by TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	started_at INTEGER NULL,
	completed_at INTEGER NULL,
	result_summary TEXT NULL,
	error_message TEXT NULL,
	run_generation INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_simulations_creator ON simulations(created_by, created_at);
`

// SQLiteStore is a durable Store implementation backed by a local SQLite
// database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath and applies the schema.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create inserts a new record.
func (s *SQLiteStore) Create(ctx context.Context, sim *Simulation) error {
	participants, err := json.Marshal(sim.ParticipantUserIDs)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO simulations(
			id, name, instruction, participant_user_ids, status, created_by,
			created_at, started_at, completed_at, result_summary, error_message, run_generation
		) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sim.ID, sim.Name, sim.Instruction, string(participants), string(sim.Status), sim.CreatedBy,
		sim.CreatedAt.Unix(), nullableUnix(sim.StartedAt), nullableUnix(sim.CompletedAt),
		sim.ResultSummary, sim.ErrorMessage, sim.RunGeneration,
	)
	if err != nil {
		return fmt.Errorf("create simulation: %w", err)
	}
	return nil
}

// Get returns the record or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Simulation, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, name, instruction, participant_user_ids, status, created_by,
			created_at, started_at, completed_at, result_summary, error_message, run_generation
		FROM simulations WHERE id = ?`,
		id,
	)
	sim, err := scanSimulation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get simulation: %w", err)
	}
	return sim, nil
}

// Update overwrites an existing record or returns ErrNotFound.
func (s *SQLiteStore) Update(ctx context.Context, sim *Simulation) error {
	participants, err := json.Marshal(sim.ParticipantUserIDs)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE simulations SET
			name = ?, instruction = ?, participant_user_ids = ?, status = ?,
			started_at = ?, completed_at = ?, result_summary = ?, error_message = ?, run_generation = ?
		WHERE id = ?`,
		sim.Name, sim.Instruction, string(participants), string(sim.Status),
		nullableUnix(sim.StartedAt), nullableUnix(sim.CompletedAt),
		sim.ResultSummary, sim.ErrorMessage, sim.RunGeneration,
		sim.ID,
	)
	if err != nil {
		return fmt.Errorf("update simulation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update simulation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a record or returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM simulations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete simulation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete simulation: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCreator returns all simulations created by userID.
func (s *SQLiteStore) ListByCreator(ctx context.Context, userID string) ([]*Simulation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, instruction, participant_user_ids, status, created_by,
			created_at, started_at, completed_at, result_summary, error_message, run_generation
		FROM simulations WHERE created_by = ?`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list simulations: %w", err)
	}
	defer rows.Close()

	var out []*Simulation
	for rows.Next() {
		sim, err := scanSimulation(rows)
		if err != nil {
			return nil, fmt.Errorf("list simulations: %w", err)
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}

// PruneTerminal removes terminal records completed before the cutoff.
func (s *SQLiteStore) PruneTerminal(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM simulations WHERE status IN (?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(StatusCompleted), string(StatusFailed), before.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune simulations: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune simulations: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSimulation(row rowScanner) (*Simulation, error) {
	var sim Simulation
	var participants, status string
	var created int64
	var started, completed sql.NullInt64
	var summary, errMsg sql.NullString

	if err := row.Scan(
		&sim.ID, &sim.Name, &sim.Instruction, &participants, &status, &sim.CreatedBy,
		&created, &started, &completed, &summary, &errMsg, &sim.RunGeneration,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(participants), &sim.ParticipantUserIDs); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	sim.Status = Status(status)
	sim.CreatedAt = time.Unix(created, 0).UTC()
	sim.StartedAt = int64ToTimePtr(started)
	sim.CompletedAt = int64ToTimePtr(completed)
	if summary.Valid {
		sim.ResultSummary = &summary.String
	}
	if errMsg.Valid {
		sim.ErrorMessage = &errMsg.String
	}
	return &sim, nil
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func int64ToTimePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
