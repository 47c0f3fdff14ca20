package state

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/errors"
	"github.com/localtex/cli/internal/interfaces"
	_ "github.com/mattn/go-sqlite3"
)

// HistoryLimit is the number of refresh cycles kept in refresh_history
const HistoryLimit = 500

// Manager implements the StateManager interface on SQLite
type Manager struct {
	db           *sql.DB
	historyLimit int
}

// NewManager creates a new state manager instance
func NewManager() *Manager {
	return &Manager{historyLimit: HistoryLimit}
}

// Initialize opens the SQLite database at dbPath and creates the schema
func (m *Manager) Initialize(dbPath string) error {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return errors.NewGenericError("failed to open database", err)
	}

	m.db = db

	// Test the database connection to detect corruption early
	if err := m.db.Ping(); err != nil {
		m.db.Close()
		m.db = nil
		return errors.NewGenericError("database file is corrupted or inaccessible", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS bitmaps (
		tracking_id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		format TEXT NOT NULL,
		world_id TEXT NOT NULL,
		status TEXT NOT NULL,
		last_modified TEXT NOT NULL,
		added_at TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS refresh_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		checked INTEGER NOT NULL,
		changed INTEGER NOT NULL,
		broken INTEGER NOT NULL,
		recomposed INTEGER NOT NULL
	);
	`

	if _, err := m.db.Exec(schema); err != nil {
		m.db.Close()
		m.db = nil
		if isCorruptionError(err) {
			return errors.NewGenericError("database file is corrupted and cannot be initialized", err)
		}
		return errors.NewGenericError("failed to create database schema", err)
	}

	return nil
}

// isCorruptionError checks if an error indicates database corruption
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database corruption")
}

// dbError wraps a database failure, reporting corruption distinctly
func dbError(msg string, err error) error {
	if isCorruptionError(err) {
		return errors.NewGenericError("database file is corrupted", err)
	}
	return errors.NewGenericError(msg, err)
}

func (m *Manager) ready() error {
	if m.db == nil {
		return errors.NewGenericError("database not initialized", nil)
	}
	return nil
}

// SaveBitmaps replaces the stored bitmaps with records, keeping their order
func (m *Manager) SaveBitmaps(records []interfaces.BitmapRecord) error {
	if err := m.ready(); err != nil {
		return err
	}

	tx, err := m.db.Begin()
	if err != nil {
		return dbError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM bitmaps"); err != nil {
		return dbError("failed to clear bitmaps", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO bitmaps
		(tracking_id, filename, format, world_id, status, last_modified, added_at, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return dbError("failed to prepare statement", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		if _, err := stmt.Exec(
			rec.TrackingID.String(),
			rec.Filename,
			rec.Format.String(),
			rec.WorldID.String(),
			string(rec.Status),
			formatTimestamp(rec.LastModified),
			formatTimestamp(rec.AddedAt),
			i,
		); err != nil {
			return dbError(fmt.Sprintf("failed to store bitmap %s", rec.Filename), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("failed to commit transaction", err)
	}
	return nil
}

// LoadBitmaps returns the stored bitmaps in the order they were saved
func (m *Manager) LoadBitmaps() ([]interfaces.BitmapRecord, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	rows, err := m.db.Query(`SELECT tracking_id, filename, format, world_id, status, last_modified, added_at
		FROM bitmaps ORDER BY position`)
	if err != nil {
		return nil, dbError("failed to query bitmaps", err)
	}
	defer rows.Close()

	records := []interfaces.BitmapRecord{}
	for rows.Next() {
		var trackingID, filename, format, worldID, status, modified, added string
		if err := rows.Scan(&trackingID, &filename, &format, &worldID, &status, &modified, &added); err != nil {
			return nil, dbError("failed to scan bitmap row", err)
		}

		rec := interfaces.BitmapRecord{
			Filename: filename,
			Format:   interfaces.ParseFormat(format),
			Status:   interfaces.LinkStatus(status),
		}
		if rec.TrackingID, err = uuid.Parse(trackingID); err != nil {
			return nil, errors.NewGenericError(fmt.Sprintf("invalid tracking id for %s", filename), err)
		}
		if rec.WorldID, err = uuid.Parse(worldID); err != nil {
			return nil, errors.NewGenericError(fmt.Sprintf("invalid world id for %s", filename), err)
		}
		if rec.LastModified, err = parseTimestamp(modified); err != nil {
			return nil, err
		}
		if rec.AddedAt, err = parseTimestamp(added); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, dbError("failed to iterate bitmaps", err)
	}
	return records, nil
}

// DeleteBitmap removes one stored bitmap. Unknown ids are not an error.
func (m *Manager) DeleteBitmap(trackingID uuid.UUID) error {
	if err := m.ready(); err != nil {
		return err
	}
	if _, err := m.db.Exec("DELETE FROM bitmaps WHERE tracking_id = ?", trackingID.String()); err != nil {
		return dbError("failed to delete bitmap", err)
	}
	return nil
}

// RecordCycle appends a refresh cycle to the history and drops the oldest
// cycles beyond the history limit
func (m *Manager) RecordCycle(report interfaces.CycleReport) error {
	if err := m.ready(); err != nil {
		return err
	}
	result, err := m.db.Exec(
		"INSERT INTO refresh_history (timestamp, checked, changed, broken, recomposed) VALUES (?, ?, ?, ?, ?)",
		formatTimestamp(report.Timestamp),
		report.Checked,
		report.Changed,
		report.Broken,
		report.Recomposed,
	)
	if err != nil {
		return dbError("failed to record refresh cycle", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return dbError("failed to record refresh cycle", err)
	}
	if _, err := m.db.Exec("DELETE FROM refresh_history WHERE id <= ?", id-int64(m.historyLimit)); err != nil {
		return dbError("failed to trim refresh history", err)
	}
	return nil
}

// LastCycle returns the most recent refresh cycle, or a zero report when
// none has been recorded
func (m *Manager) LastCycle() (interfaces.CycleReport, error) {
	var report interfaces.CycleReport
	if err := m.ready(); err != nil {
		return report, err
	}

	var timestamp string
	err := m.db.QueryRow(`SELECT timestamp, checked, changed, broken, recomposed
		FROM refresh_history ORDER BY id DESC LIMIT 1`).
		Scan(&timestamp, &report.Checked, &report.Changed, &report.Broken, &report.Recomposed)
	if err == sql.ErrNoRows {
		return interfaces.CycleReport{}, nil
	}
	if err != nil {
		return report, dbError("failed to read last refresh cycle", err)
	}

	report.Timestamp, err = parseTimestamp(timestamp)
	return report, err
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}

	if err := m.db.Close(); err != nil {
		return errors.NewGenericError("failed to close database", err)
	}

	m.db = nil
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp accepts the formats SQLite and older rows may carry
func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05-07:00",
		time.DateTime,
	}

	var parseErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return t, nil
		}
		parseErr = err
	}
	return time.Time{}, errors.NewGenericError("failed to parse timestamp", parseErr)
}
