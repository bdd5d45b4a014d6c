package models

import (
	"encoding/json"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Vec3 is a three-axis sensor reading.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return floats.Norm([]float64{v.X, v.Y, v.Z}, 2)
}

// Quaternion is the device orientation (w, x, y, z).
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is one timestamped IMU reading. Build it with NewSample so the derived
// magnitudes are computed once; a Sample is not modified after construction.
type Sample struct {
	Timestamp    float64    // unix seconds
	RotationRate Vec3       // rad/s
	Gravity      Vec3       // normalized
	Acceleration Vec3       // g
	Orientation  Quaternion // w, x, y, z

	rotationMag float64
	accelMag    float64
}

// NewSample builds a Sample and caches its rotation and acceleration magnitudes.
func NewSample(ts float64, rotation, gravity, accel Vec3, q Quaternion) Sample {
	return Sample{
		Timestamp:    ts,
		RotationRate: rotation,
		Gravity:      gravity,
		Acceleration: accel,
		Orientation:  q,
		rotationMag:  rotation.Norm(),
		accelMag:     accel.Norm(),
	}
}

// RotationMagnitude is |rotation_rate| in rad/s, the primary detection signal.
func (s Sample) RotationMagnitude() float64 {
	if s.rotationMag == 0 {
		return s.RotationRate.Norm()
	}
	return s.rotationMag
}

// AccelerationMagnitude is |acceleration| in g.
func (s Sample) AccelerationMagnitude() float64 {
	if s.accelMag == 0 {
		return s.Acceleration.Norm()
	}
	return s.accelMag
}

type magnitudeVec struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Magnitude float64 `json:"magnitude"`
}

type sampleDoc struct {
	Timestamp    float64      `json:"timestamp"`
	RotationRate magnitudeVec `json:"rotation_rate"`
	Gravity      Vec3         `json:"gravity"`
	Acceleration magnitudeVec `json:"acceleration"`
	Quaternion   Quaternion   `json:"quaternion"`
}

// MarshalJSON renders the nested sensor_data document stored with each shot.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal(sampleDoc{
		Timestamp: s.Timestamp,
		RotationRate: magnitudeVec{
			X: s.RotationRate.X, Y: s.RotationRate.Y, Z: s.RotationRate.Z,
			Magnitude: s.RotationMagnitude(),
		},
		Gravity: s.Gravity,
		Acceleration: magnitudeVec{
			X: s.Acceleration.X, Y: s.Acceleration.Y, Z: s.Acceleration.Z,
			Magnitude: s.AccelerationMagnitude(),
		},
		Quaternion: s.Orientation,
	})
}

// UnmarshalJSON reads the document written by MarshalJSON.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var doc sampleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*s = NewSample(doc.Timestamp,
		Vec3{X: doc.RotationRate.X, Y: doc.RotationRate.Y, Z: doc.RotationRate.Z},
		doc.Gravity,
		Vec3{X: doc.Acceleration.X, Y: doc.Acceleration.Y, Z: doc.Acceleration.Z},
		doc.Quaternion,
	)
	return nil
}

// SwingEvent is one accepted peak. Sequence is the position of the peak sample
// in the session's accepted stream and does not depend on batching; Number
// counts swings within the session starting at 1.
type SwingEvent struct {
	Number                uint64  `json:"number"`
	Timestamp             float64 `json:"timestamp"`
	IndexInWindow         int     `json:"peak_index"`
	Sequence              uint64  `json:"sequence"`
	RotationMagnitude     float64 `json:"rotation_magnitude"`
	AccelerationMagnitude float64 `json:"acceleration_magnitude"`
	Sample                Sample  `json:"sensor_data"`
}

// SwingType labels a detected swing.
type SwingType string

const (
	SwingForehand SwingType = "forehand"
	SwingBackhand SwingType = "backhand"
	SwingServe    SwingType = "serve"
	SwingVolley   SwingType = "volley"
	SwingUnknown  SwingType = "unknown"
)

// ParseSwingType maps a stored label to a SwingType; unrecognised labels
// become SwingUnknown.
func ParseSwingType(s string) SwingType {
	switch t := SwingType(s); t {
	case SwingForehand, SwingBackhand, SwingServe, SwingVolley:
		return t
	}
	return SwingUnknown
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
)

// Statistics is a point-in-time view of a session's detector.
type Statistics struct {
	SessionID        string        `json:"session_id"`
	Device           string        `json:"device"`
	Status           SessionStatus `json:"status"`
	SamplesProcessed uint64        `json:"total_samples_processed"`
	LastSwingAt      *float64      `json:"last_swing_timestamp,omitempty"`
	SamplesRejected  uint64        `json:"total_samples_rejected"`
	PeaksDetected    uint64        `json:"total_peaks_detected"`
	BufferOccupancy  int           `json:"buffer_size"`
	BufferCapacity   int           `json:"buffer_capacity"`
	ElapsedSeconds   float64       `json:"elapsed_time_seconds"`
	SampleRateHz     float64       `json:"sample_rate_hz"`
	Threshold        float64       `json:"threshold"`
	MinDistance      int           `json:"min_distance"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
}

// SessionRecord is the stored form of a started session.
type SessionRecord struct {
	SessionID string                 `json:"session_id"`
	Device    string                 `json:"device"`
	StartTime time.Time              `json:"start_time"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SwingRecord is the stored form of a detected swing.
type SwingRecord struct {
	ShotID                string    `json:"shot_id"`
	SessionID             string    `json:"session_id"`
	Timestamp             float64   `json:"timestamp"`
	SequenceNumber        uint64    `json:"sequence_number"`
	RotationMagnitude     float64   `json:"rotation_magnitude"`
	AccelerationMagnitude float64   `json:"acceleration_magnitude"`
	SpeedMPH              float64   `json:"estimated_speed_mph"`
	SwingType             SwingType `json:"swing_type"`
	SensorData            Sample    `json:"sensor_data"`
}

// SessionSummary is a stored session as returned by the query API.
type SessionSummary struct {
	SessionID       string        `json:"session_id"`
	Device          string        `json:"device"`
	Date            string        `json:"date"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time"`
	DurationMinutes *int          `json:"duration_minutes"`
	ShotCount       int           `json:"shot_count"`
	Status          SessionStatus `json:"status"`
	Shots           []SwingRecord `json:"shots,omitempty"`
}
