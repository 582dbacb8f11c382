// Package state persists container records across daemon restarts.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/woody-containers/woody/pkg/cgroups"
)

// ErrNotFound is returned when no record exists for a container ID.
var ErrNotFound = errors.New("state: container not found")

// ContainerState is the persistent record of one container.
type ContainerState struct {
	ID       string
	PID      int
	Status   string
	Command  []string
	Rootfs   string
	Created  time.Time
	ExitCode int
	Limits   cgroups.ResourceLimits
}

// Store is a SQLite-backed container record store.
type Store struct {
	db *sql.DB
}

const timeLayout = time.RFC3339Nano

// NewStore opens (creating if needed) the store at path and ensures
// the schema.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS containers (
		id TEXT PRIMARY KEY,
		pid INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		command_json TEXT NOT NULL,
		rootfs TEXT NOT NULL,
		created_ts TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		limits_json TEXT NOT NULL
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveContainer inserts or replaces a container record.
func (s *Store) SaveContainer(ctx context.Context, state *ContainerState) error {
	commandJSON, err := json.Marshal(state.Command)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	limitsJSON, err := json.Marshal(state.Limits)
	if err != nil {
		return fmt.Errorf("failed to marshal limits: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO containers(id, pid, status, command_json, rootfs, created_ts, exit_code, limits_json)
		 VALUES(?,?,?,?,?,?,?,?)`,
		state.ID,
		state.PID,
		state.Status,
		string(commandJSON),
		state.Rootfs,
		state.Created.UTC().Format(timeLayout),
		state.ExitCode,
		string(limitsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to save container %s: %w", state.ID, err)
	}
	return nil
}

// LoadContainer reads one container record.
func (s *Store) LoadContainer(ctx context.Context, id string) (*ContainerState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pid, status, command_json, rootfs, created_ts, exit_code, limits_json
		 FROM containers WHERE id = ?`, id)

	state, err := scanContainer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return state, err
}

// ListContainers returns every stored record, oldest first.
func (s *Store) ListContainers(ctx context.Context) ([]*ContainerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pid, status, command_json, rootfs, created_ts, exit_code, limits_json
		 FROM containers ORDER BY created_ts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	defer rows.Close()

	var containers []*ContainerState
	for rows.Next() {
		state, err := scanContainer(rows)
		if err != nil {
			return nil, err
		}
		containers = append(containers, state)
	}
	return containers, rows.Err()
}

// DeleteContainer removes a record. Deleting a missing record is not
// an error.
func (s *Store) DeleteContainer(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM containers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContainer(row scanner) (*ContainerState, error) {
	var state ContainerState
	var commandJSON, limitsJSON, createdTS string

	if err := row.Scan(&state.ID, &state.PID, &state.Status, &commandJSON,
		&state.Rootfs, &createdTS, &state.ExitCode, &limitsJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(commandJSON), &state.Command); err != nil {
		return nil, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	if err := json.Unmarshal([]byte(limitsJSON), &state.Limits); err != nil {
		return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
	}
	created, err := time.Parse(timeLayout, createdTS)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created timestamp: %w", err)
	}
	state.Created = created

	return &state, nil
}
