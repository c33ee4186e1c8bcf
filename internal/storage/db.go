package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/session"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Storage is the durable client-side store: home Wi-Fi credentials and the
// provisioning history.
type Storage struct {
	db  *sqlx.DB
	log logr.Logger
}

// Run is one provisioning attempt as recorded in the history.
type Run struct {
	Id         string    `db:"run_id" json:"run_id" yaml:"run_id"`
	StartedAt  time.Time `db:"started_at" json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at" yaml:"finished_at"`
	SSID       string    `db:"ssid" json:"ssid" yaml:"ssid"`
	Mac        string    `db:"mac" json:"mac,omitempty" yaml:"mac,omitempty"`
	DeviceId   string    `db:"device_id" json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome" yaml:"outcome"`
	Error      string    `db:"error" json:"error,omitempty" yaml:"error,omitempty"`
}

func NewStorage(log logr.Logger, dbName string) (*Storage, error) {
	db, err := sqlx.Connect("sqlite3", dbName)
	if err != nil {
		log.Error(err, "Failed to connect to database", "dbType", "sqlite3", "dbName", dbName)
		return nil, err
	}

	storage := &Storage{
		db:  db,
		log: log.WithName("Storage"),
	}
	err = storage.createTables()
	if err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *Storage) createTables() error {
	schema := `
    CREATE TABLE IF NOT EXISTS wifi_credentials (
        id INTEGER PRIMARY KEY CHECK (id = 1),  -- a single home network
        ssid TEXT NOT NULL,
        password TEXT NOT NULL,
        updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS provisioning_runs (
        run_id TEXT PRIMARY KEY,
        started_at TIMESTAMP NOT NULL,
        finished_at TIMESTAMP NOT NULL,
        ssid TEXT NOT NULL,
        mac TEXT NOT NULL DEFAULT '',
        device_id TEXT NOT NULL DEFAULT '',
        outcome TEXT NOT NULL,
        error TEXT NOT NULL DEFAULT ''
    );
`
	_, err := s.db.Exec(schema)
	if err != nil {
		s.log.Error(err, "Failed to execute create table query")
		return err
	}
	s.log.V(1).Info("Created tables")
	return nil
}

// Close closes the database connection & syncs it to persistent storage.
func (s *Storage) Close() {
	s.log.V(1).Info("Closing database connection")
	s.db.Close()
}

// GetWifiCredentials returns nil when none were stored.
func (s *Storage) GetWifiCredentials(ctx context.Context) (*session.Credentials, error) {
	var c session.Credentials
	err := s.db.GetContext(ctx, &c, `SELECT ssid, password FROM wifi_credentials WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading wifi credentials: %w", err)
	}
	return &c, nil
}

func (s *Storage) SetWifiCredentials(ctx context.Context, c session.Credentials) error {
	if c.SSID == "" {
		return fmt.Errorf("empty SSID")
	}
	query := `
    INSERT INTO wifi_credentials (id, ssid, password, updated_at)
    VALUES (1, :ssid, :password, CURRENT_TIMESTAMP)
    ON CONFLICT(id) DO UPDATE SET
        ssid = excluded.ssid,
        password = excluded.password,
        updated_at = excluded.updated_at`
	_, err := s.db.NamedExecContext(ctx, query, c)
	if err != nil {
		s.log.Error(err, "Failed to store wifi credentials", "ssid", c.SSID)
		return err
	}
	s.log.Info("Stored wifi credentials", "ssid", c.SSID)
	return nil
}

func (s *Storage) ForgetWifiCredentials(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wifi_credentials`)
	return err
}

func (s *Storage) RecordRun(ctx context.Context, run Run) error {
	// UTC keeps the text timestamps ordered
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()
	query := `
    INSERT INTO provisioning_runs (run_id, started_at, finished_at, ssid, mac, device_id, outcome, error)
    VALUES (:run_id, :started_at, :finished_at, :ssid, :mac, :device_id, :outcome, :error)`
	_, err := s.db.NamedExecContext(ctx, query, run)
	if err != nil {
		s.log.Error(err, "Failed to record run", "run_id", run.Id)
		return err
	}
	return nil
}

// ListRuns returns up to limit runs, most recent first. A limit <= 0
// returns them all.
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	runs := make([]Run, 0)
	err := s.db.SelectContext(ctx, &runs, `SELECT * FROM provisioning_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}
