// Package store persists procedures and badge activity in SQLite and serves
// them to the engine as a procedure repository and a badge event source.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/triagewatch/internal/model"
)

const schemaVersion = 1

// SQLite is a procedure repository and badge event source backed by one
// database file.
type SQLite struct {
	DB *sql.DB
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	// Pre-create the file; some sandboxes refuse to let SQLite create it.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("precreate sqlite db %s: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLite{DB: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.DB.Close() }

func (s *SQLite) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
	}
	for _, st := range stmts {
		if _, err := s.DB.Exec(st); err != nil {
			if strings.Contains(err.Error(), "readonly") {
				continue
			}
			return fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	var userVersion int
	if err := s.DB.QueryRow(`PRAGMA user_version;`).Scan(&userVersion); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if userVersion == 0 {
		if err := s.migrateToV1(); err != nil {
			return err
		}
		if _, err := s.DB.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
		userVersion = schemaVersion
	}
	if userVersion != schemaVersion {
		return fmt.Errorf("unsupported sqlite schema version %d", userVersion)
	}
	return nil
}

func (s *SQLite) migrateToV1() error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS procedures(
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			category TEXT,
			priority_override TEXT,
			searchable_text TEXT,
			data_json TEXT NOT NULL,
			updated_ts INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS badge_events(
			event_id TEXT PRIMARY KEY,
			badge_id TEXT,
			employee_name TEXT,
			employee_active INTEGER,
			access_level TEXT,
			location TEXT,
			ts INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_procedures_category ON procedures(category);`,
		`CREATE INDEX IF NOT EXISTS idx_badge_events_location_ts ON badge_events(location, ts);`,
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range ddl {
		if _, err := tx.Exec(st); err != nil {
			return fmt.Errorf("sqlite ddl: %w", err)
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertProcedure inserts or replaces one procedure. Invalid records are rejected.
func (s *SQLite) UpsertProcedure(ctx context.Context, rec model.ProcedureRecord) error {
	return upsertProcedure(ctx, s.DB, rec)
}

func upsertProcedure(ctx context.Context, db execer, rec model.ProcedureRecord) error {
	rec = rec.Indexed()
	if err := rec.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal procedure %s: %w", rec.ID, err)
	}
	var override any
	if rec.PriorityOverride != nil {
		override = string(*rec.PriorityOverride)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO procedures(id, title, category, priority_override, searchable_text, data_json, updated_ts)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			category=excluded.category,
			priority_override=excluded.priority_override,
			searchable_text=excluded.searchable_text,
			data_json=excluded.data_json,
			updated_ts=excluded.updated_ts`,
		rec.ID, rec.Title, nullStr(rec.Category), override, rec.SearchText, string(data), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert procedure %s: %w", rec.ID, err)
	}
	return nil
}

// ImportProcedures upserts records in one transaction. Malformed records
// are skipped and returned; a database error aborts the whole import.
func (s *SQLite) ImportProcedures(ctx context.Context, records []model.ProcedureRecord) (int, []error, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var skipped []error
	n := 0
	for _, rec := range records {
		if err := rec.Indexed().Validate(); err != nil {
			skipped = append(skipped, err)
			continue
		}
		if err := upsertProcedure(ctx, tx, rec); err != nil {
			return 0, nil, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit import: %w", err)
	}
	return n, skipped, nil
}

// DeleteProcedure removes a procedure by id.
func (s *SQLite) DeleteProcedure(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM procedures WHERE id=?`, id)
	return err
}

// Query returns procedures newest id first, optionally filtered by category.
// Rows whose JSON cannot be decoded come back with only ID set, so the
// matcher rejects and logs them.
func (s *SQLite) Query(ctx context.Context, _ []string, category string) ([]model.ProcedureRecord, error) {
	q := `SELECT id, data_json, searchable_text FROM procedures`
	var args []any
	if category != "" {
		q += ` WHERE category = ? COLLATE NOCASE`
		args = append(args, category)
	}
	q += ` ORDER BY id DESC`

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRepositoryUnavailable, err)
	}
	defer rows.Close()

	var out []model.ProcedureRecord
	for rows.Next() {
		var id, data string
		var search sql.NullString
		if err := rows.Scan(&id, &data, &search); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrRepositoryUnavailable, err)
		}
		var rec model.ProcedureRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			out = append(out, model.ProcedureRecord{ID: id})
			continue
		}
		rec.SearchText = search.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRepositoryUnavailable, err)
	}
	return out, nil
}

// InsertBadgeEvent records one badge presentation. An empty EventID is
// replaced with a random UUID, which is returned.
func (s *SQLite) InsertBadgeEvent(ctx context.Context, b model.BadgeEvent) (string, error) {
	return insertBadgeEvent(ctx, s.DB, b)
}

// ImportBadgeEvents inserts badge events in one transaction. Any failure,
// including a duplicate event ID, rolls back the whole batch.
func (s *SQLite) ImportBadgeEvents(ctx context.Context, badges []model.BadgeEvent) (int, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for i, b := range badges {
		if b.BadgeID == "" || b.Timestamp.IsZero() {
			return 0, fmt.Errorf("%w: badge event %d needs badge_id and timestamp", model.ErrCorrelationData, i)
		}
		if _, err := insertBadgeEvent(ctx, tx, b); err != nil {
			return 0, fmt.Errorf("badge event %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit badge import: %w", err)
	}
	return len(badges), nil
}

func insertBadgeEvent(ctx context.Context, db execer, b model.BadgeEvent) (string, error) {
	if b.EventID == "" {
		b.EventID = uuid.NewString()
	}
	active := 0
	if b.EmployeeActive {
		active = 1
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO badge_events(event_id, badge_id, employee_name, employee_active, access_level, location, ts)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		b.EventID, b.BadgeID, nullStr(b.EmployeeName), active, nullStr(b.AccessLevel), b.Location, b.Timestamp.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert badge event: %w", err)
	}
	return b.EventID, nil
}

// EventsNear returns badge events within window of at. An empty location
// matches every location.
func (s *SQLite) EventsNear(ctx context.Context, location string, at time.Time, window time.Duration) ([]model.BadgeEvent, error) {
	if window < 0 {
		window = -window
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT event_id, badge_id, employee_name, employee_active, access_level, location, ts
		 FROM badge_events
		 WHERE ts BETWEEN ? AND ?
		   AND (? = '' OR location = ? COLLATE NOCASE)
		 ORDER BY ts, event_id`,
		at.Add(-window).UnixNano(), at.Add(window).UnixNano(), location, location,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorrelationData, err)
	}
	defer rows.Close()

	var out []model.BadgeEvent
	for rows.Next() {
		var b model.BadgeEvent
		var name, level sql.NullString
		var active int
		var ts int64
		if err := rows.Scan(&b.EventID, &b.BadgeID, &name, &active, &level, &b.Location, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrCorrelationData, err)
		}
		b.EmployeeName = name.String
		b.AccessLevel = level.String
		b.EmployeeActive = active != 0
		b.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorrelationData, err)
	}
	return out, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
