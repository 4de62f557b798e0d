package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateTable = `CREATE TABLE IF NOT EXISTS sdmrr_t2 (
		"ID"       INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Run"      TEXT NOT NULL,
		"Channel"  TEXT NOT NULL,
		"Time"     REAL NOT NULL,
		"T2"       REAL,
		"F0"       REAL,
		"T90"      REAL,
		"Accepted" INTEGER
	);`
	sqliteInsert = `INSERT INTO sdmrr_t2 (
		Run,
		Channel,
		Time,
		T2,
		F0,
		T90,
		Accepted
	) VALUES (?, ?, ?, ?, ?, ?, ?);`
)

// Measurement is the outcome of one channel pass.
type Measurement struct {
	Channel  string
	Time     time.Time
	T2       float64
	F0       float64
	T90      float64
	Accepted bool
}

// Exporter receives every measurement, accepted or not.
type Exporter interface {
	Write(ctx context.Context, m Measurement) error
	Close() error
}

// Ensure SQLite implements Exporter.
var _ Exporter = (*SQLite)(nil)

// SQLite appends measurements to a sqlite database. Rows written by one
// exporter share its run id.
type SQLite struct {
	DB    *sql.DB
	RunID string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteCreateTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create table: %w", err)
	}
	return &SQLite{DB: db, RunID: uuid.NewString()}, nil
}

// Write inserts m.
func (s *SQLite) Write(ctx context.Context, m Measurement) error {
	accepted := 0
	if m.Accepted {
		accepted = 1
	}
	_, err := s.DB.ExecContext(ctx, sqliteInsert,
		s.RunID, m.Channel, float64(m.Time.UnixNano())/1e9, m.T2, m.F0, m.T90, accepted)
	if err != nil {
		return fmt.Errorf("failed to store measurement: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.DB.Close()
}
