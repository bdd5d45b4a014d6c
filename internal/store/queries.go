package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"swing-service/internal/models"
)

// RawBatch is one stored raw sensor batch.
type RawBatch struct {
	BufferID       string
	SessionID      string
	StartTimestamp float64
	EndTimestamp   float64
	Samples        []models.Sample
}

const sessionColumns = `session_id, device, date, start_time, end_time, duration_minutes, shot_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.SessionSummary, error) {
	var (
		s        models.SessionSummary
		start    int64
		end      sql.NullInt64
		duration sql.NullInt64
	)
	if err := row.Scan(&s.SessionID, &s.Device, &s.Date, &start, &end, &duration, &s.ShotCount); err != nil {
		return s, err
	}
	s.StartTime = time.Unix(start, 0).UTC()
	s.Status = models.StatusActive
	if end.Valid {
		t := time.Unix(end.Int64, 0).UTC()
		s.EndTime = &t
		s.Status = models.StatusEnded
	}
	if duration.Valid {
		d := int(duration.Int64)
		s.DurationMinutes = &d
	}
	return s, nil
}

// ListSessions returns up to limit sessions, newest first.
func (db *SQLite) ListSessions(ctx context.Context, limit int) ([]models.SessionSummary, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := []models.SessionSummary{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSession returns a stored session with all its shots.
func (db *SQLite) GetSession(ctx context.Context, id string) (models.SessionSummary, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return s, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	s.Shots, err = db.ListSwings(ctx, id, -1)
	return s, err
}

// ListSwings returns swings of one session in order, or when sessionID is
// empty the most recent swings across all sessions. A negative limit means
// no limit.
func (db *SQLite) ListSwings(ctx context.Context, sessionID string, limit int) ([]models.SwingRecord, error) {
	const columns = `shot_id, session_id, timestamp, sequence_number,
		rotation_magnitude, acceleration_magnitude, speed_mph, swing_type, data_json`

	var (
		rows *sql.Rows
		err  error
	)
	if sessionID != "" {
		rows, err = db.QueryContext(ctx, `SELECT `+columns+` FROM shots
			WHERE session_id = ? ORDER BY sequence_number LIMIT ?`, sessionID, limit)
	} else {
		rows, err = db.QueryContext(ctx, `SELECT `+columns+` FROM shots
			ORDER BY timestamp DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list shots: %w", err)
	}
	defer rows.Close()

	out := []models.SwingRecord{}
	for rows.Next() {
		var (
			rec       models.SwingRecord
			speed     sql.NullFloat64
			swingType string
			data      sql.NullString
		)
		if err := rows.Scan(&rec.ShotID, &rec.SessionID, &rec.Timestamp, &rec.SequenceNumber,
			&rec.RotationMagnitude, &rec.AccelerationMagnitude, &speed, &swingType, &data); err != nil {
			return nil, err
		}
		rec.SpeedMPH = speed.Float64
		rec.SwingType = models.ParseSwingType(swingType)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &rec.SensorData); err != nil {
				return nil, fmt.Errorf("failed to decode sensor data of %s: %w", rec.ShotID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RawBatches returns the stored raw batches of a session in timestamp order,
// decompressed, for offline reprocessing.
func (db *SQLite) RawBatches(ctx context.Context, sessionID string) ([]RawBatch, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT buffer_id, session_id, start_timestamp, end_timestamp, compressed_data
		FROM raw_sensor_buffer WHERE session_id = ? ORDER BY start_timestamp`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw batches: %w", err)
	}
	defer rows.Close()

	var out []RawBatch
	for rows.Next() {
		var (
			b       RawBatch
			payload []byte
		)
		if err := rows.Scan(&b.BufferID, &b.SessionID, &b.StartTimestamp, &b.EndTimestamp, &payload); err != nil {
			return nil, err
		}
		if b.Samples, err = decodeRawBatch(payload); err != nil {
			return nil, fmt.Errorf("buffer %s: %w", b.BufferID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
