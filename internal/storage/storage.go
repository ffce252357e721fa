// Package storage provides SQLite-backed persistence for settings, finished
// sessions and alert history.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/postureguard/internal/models"
	_ "modernc.org/sqlite"
)

// alertsPerSession bounds alert history relative to the session cap.
const alertsPerSession = 50

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db          *sql.DB
	maxSessions int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/postureguard/data.db.
func New(maxSessions int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "postureguard", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if maxSessions < 1 {
		maxSessions = 1
	}
	s := &Storage{db: db, maxSessions: maxSessions}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key         TEXT PRIMARY KEY,
			value       REAL NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id                  TEXT PRIMARY KEY,
			started_at          INTEGER NOT NULL,
			ended_at            INTEGER NOT NULL,
			total_ns            INTEGER NOT NULL,
			poor_ns             INTEGER NOT NULL,
			poor_percentage     INTEGER NOT NULL,
			alert_count         INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			pitch           REAL NOT NULL,
			roll            REAL NOT NULL,
			duration_ns     INTEGER NOT NULL,
			reference_pitch REAL NOT NULL,
			reference_roll  REAL NOT NULL,
			detected_at     INTEGER NOT NULL,
			notified        INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_detected_at ON alerts(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_session ON alerts(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// LoadSettings overlays persisted values on defaults. Unknown keys are ignored.
func (s *Storage) LoadSettings(defaults models.Settings) (models.Settings, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return defaults, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := defaults
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return defaults, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings.Set(key, value)
	}
	if err := rows.Err(); err != nil {
		return defaults, err
	}
	return settings, nil
}

// SaveSettings writes all values in one transaction.
func (s *Storage) SaveSettings(values map[string]float64) error {
	var probe models.Settings
	for k, v := range values {
		if !probe.Set(k, v) {
			return fmt.Errorf("unknown setting: %s", k)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UnixNano()
	for k, v := range values {
		if _, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?,?,?)
			ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
			k, v, now,
		); err != nil {
			return fmt.Errorf("failed to save setting %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// SaveSession stores a finished session and keeps only the newest maxSessions.
func (s *Storage) SaveSession(record *models.SessionRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO sessions
			(id, started_at, ended_at, total_ns, poor_ns, poor_percentage, alert_count)
		VALUES (?,?,?,?,?,?,?)`,
		record.ID, record.StartedAt.UnixNano(), record.EndedAt.UnixNano(),
		int64(record.TotalTime), int64(record.PoorPostureTime),
		record.PoorPosturePercentage, record.AlertCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM sessions WHERE id NOT IN (
			SELECT id FROM sessions ORDER BY ended_at DESC LIMIT ?
		)`, s.maxSessions); err != nil {
		return fmt.Errorf("failed to enforce session cap: %w", err)
	}

	return tx.Commit()
}

// GetRecentSessions returns up to limit sessions, newest first.
func (s *Storage) GetRecentSessions(limit int) ([]models.SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, ended_at, total_ns, poor_ns, poor_percentage, alert_count
		FROM sessions ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.SessionRecord{}
	for rows.Next() {
		var r models.SessionRecord
		var startedNano, endedNano, totalNano, poorNano int64
		if err := rows.Scan(&r.ID, &startedNano, &endedNano, &totalNano, &poorNano,
			&r.PoorPosturePercentage, &r.AlertCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		r.StartedAt = time.Unix(0, startedNano)
		r.EndedAt = time.Unix(0, endedNano)
		r.TotalTime = time.Duration(totalNano)
		r.PoorPostureTime = time.Duration(poorNano)
		sessions = append(sessions, r)
	}
	return sessions, rows.Err()
}

// AddAlert records a gated alert.
func (s *Storage) AddAlert(alert *models.AlertEvent) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, session_id, pitch, roll, duration_ns, reference_pitch, reference_roll,
			 detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.SessionID, alert.Pitch, alert.Roll, int64(alert.Duration),
		alert.Baseline.ReferencePitch, alert.Baseline.ReferenceRoll,
		alert.DetectedAt.UnixNano(), boolToInt(alert.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM alerts WHERE id NOT IN (
			SELECT id FROM alerts ORDER BY detected_at DESC LIMIT ?
		)`, s.maxSessions*alertsPerSession); err != nil {
		return fmt.Errorf("failed to enforce alert cap: %w", err)
	}

	return tx.Commit()
}

// GetRecentAlerts returns up to limit alerts, newest first.
func (s *Storage) GetRecentAlerts(limit int) ([]models.AlertEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, pitch, roll, duration_ns, reference_pitch, reference_roll,
		       detected_at, notified
		FROM alerts ORDER BY detected_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.AlertEvent{}
	for rows.Next() {
		var a models.AlertEvent
		var durationNano, detectedAtNano int64
		var notified int

		err := rows.Scan(
			&a.ID, &a.SessionID, &a.Pitch, &a.Roll, &durationNano,
			&a.Baseline.ReferencePitch, &a.Baseline.ReferenceRoll,
			&detectedAtNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		a.Duration = time.Duration(durationNano)
		a.DetectedAt = time.Unix(0, detectedAtNano)
		a.Notified = notified != 0
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// CountAlerts returns the number of alerts recorded for a session.
func (s *Storage) CountAlerts(sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
