// Package archive keeps an offline sqlite copy of the telemetry log for
// post-run analysis. The live API never touches it; runs are pulled in
// with the archive subcommand and inspected with query/stats.
package archive

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"vessel-gcs/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Archive wraps the sqlite connection.
type Archive struct {
	conn *sql.DB
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// Single writer keeps sqlite happy.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	a := &Archive{conn: conn}
	if err := a.initialize(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	return a, nil
}

func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		battery TEXT,
		current TEXT,
		level TEXT,
		gps_fix TEXT,
		gps_sats TEXT,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		alt TEXT,
		mode TEXT,
		sensor_data TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry(ts);
	CREATE INDEX IF NOT EXISTS idx_telemetry_mode ON telemetry(mode);
	`
	_, err := a.conn.Exec(schema)
	return err
}

// Close closes the archive connection.
func (a *Archive) Close() error {
	return a.conn.Close()
}

// InsertBatch archives records in a single transaction and returns the
// number inserted.
func (a *Archive) InsertBatch(records []models.TelemetryRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := a.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO telemetry
		(ts, battery, current, level, gps_fix, gps_sats, lat, lon, alt, mode, sensor_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var count int64
	for _, r := range records {
		if _, err := stmt.Exec(r.Timestamp, r.Battery, r.Current, r.Level,
			r.GPSFix, r.GPSSats, r.Latitude, r.Longitude, r.Altitude,
			r.Mode, r.SensorData); err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return count, nil
}

// QueryParams filters an archive read-back.
type QueryParams struct {
	Mode   string
	Limit  int
	Offset int
}

// Query returns archived records newest-first.
func (a *Archive) Query(q QueryParams) ([]models.TelemetryRecord, error) {
	query := `SELECT ts, battery, current, level, gps_fix, gps_sats,
		lat, lon, alt, mode, sensor_data FROM telemetry`
	var conditions []string
	var args []interface{}

	if q.Mode != "" {
		conditions = append(conditions, "mode = ?")
		args = append(args, q.Mode)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY ts DESC"
	if q.Limit <= 0 {
		q.Limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := a.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.TelemetryRecord
	for rows.Next() {
		var r models.TelemetryRecord
		if err := rows.Scan(&r.Timestamp, &r.Battery, &r.Current, &r.Level,
			&r.GPSFix, &r.GPSSats, &r.Latitude, &r.Longitude, &r.Altitude,
			&r.Mode, &r.SensorData); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Summary aggregates the archived run.
type Summary struct {
	TotalRecords   int            `json:"total_records"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
	ModeCounts     map[string]int `json:"mode_counts"`
}

// Summarize returns record count, time bounds and a per-mode breakdown.
func (a *Archive) Summarize() (*Summary, error) {
	s := &Summary{ModeCounts: make(map[string]int)}

	row := a.conn.QueryRow(`SELECT COUNT(*),
		COALESCE(MIN(ts), ''), COALESCE(MAX(ts), '') FROM telemetry`)
	if err := row.Scan(&s.TotalRecords, &s.FirstTimestamp, &s.LastTimestamp); err != nil {
		return nil, err
	}

	rows, err := a.conn.Query(`SELECT mode, COUNT(*) FROM telemetry GROUP BY mode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, err
		}
		s.ModeCounts[mode] = count
	}
	return s, rows.Err()
}
