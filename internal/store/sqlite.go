// Package store persists sessions, swings and raw sensor batches in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"swing-service/internal/ingest"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
)

// ErrNotFound is returned by lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// SQLite is the relational store. It implements ingest.Store.
type SQLite struct {
	*sql.DB
}

var _ ingest.Store = (*SQLite)(nil)

// Open opens (creating if needed) the database at path, applies connection
// pragmas and migrates the schema to the latest version.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps the per-connection pragmas in force
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	s := &SQLite{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// StartSession inserts the session unless it already exists.
func (db *SQLite) StartSession(ctx context.Context, rec models.SessionRecord) error {
	data, err := json.Marshal(map[string]interface{}{
		"device":     rec.Device,
		"start_time": rec.StartTime.Unix(),
		"metadata":   rec.Metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, device, date, start_time, data_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.Device, rec.StartTime.UTC().Format("2006-01-02"), rec.StartTime.Unix(), string(data))
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", rec.SessionID, err)
	}
	return nil
}

// StoreRawBatch compresses and stores samples. A batch with the same session
// and timestamp range as a stored one is skipped.
func (db *SQLite) StoreRawBatch(ctx context.Context, sessionID string, samples []models.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	start, end := ingest.BatchRange(samples)
	payload, err := encodeRawBatch(samples)
	if err != nil {
		return fmt.Errorf("failed to encode raw batch: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO raw_sensor_buffer (
			buffer_id, session_id, start_timestamp, end_timestamp, sample_count, compressed_data
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, start_timestamp, end_timestamp) DO NOTHING`,
		newBufferID(), sessionID, start, end, len(samples), payload)
	if err != nil {
		return fmt.Errorf("failed to insert raw batch for %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		monitoring.Logf("[store] raw batch %.3f-%.3f for %s already stored, skipping", start, end, sessionID)
	}
	return nil
}

// StoreSwing inserts a detected swing. Re-storing the same shot is a no-op.
func (db *SQLite) StoreSwing(ctx context.Context, rec models.SwingRecord) error {
	data, err := json.Marshal(rec.SensorData)
	if err != nil {
		return fmt.Errorf("failed to marshal sensor data: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO shots (
			shot_id, session_id, timestamp, sequence_number,
			rotation_magnitude, acceleration_magnitude, speed_mph, swing_type, data_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, shot_id) DO NOTHING`,
		rec.ShotID, rec.SessionID, rec.Timestamp, rec.SequenceNumber,
		rec.RotationMagnitude, rec.AccelerationMagnitude, rec.SpeedMPH, string(rec.SwingType), string(data))
	if err != nil {
		return fmt.Errorf("failed to insert shot %s: %w", rec.ShotID, err)
	}
	return nil
}

// UpsertSessionSummary records the end of a session. A session never seen
// before is created with its start equal to its end.
func (db *SQLite) UpsertSessionSummary(ctx context.Context, sessionID string, endTime time.Time, shotCount int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, device, date, start_time, end_time, duration_minutes, shot_count)
		VALUES (?, 'unknown', ?, ?, ?, 0, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			end_time = excluded.end_time,
			duration_minutes = (excluded.end_time - sessions.start_time) / 60,
			shot_count = excluded.shot_count,
			updated_at = strftime('%s', 'now')`,
		sessionID, endTime.UTC().Format("2006-01-02"), endTime.Unix(), endTime.Unix(), shotCount)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	return nil
}

func newBufferID() string {
	return "buffer_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
