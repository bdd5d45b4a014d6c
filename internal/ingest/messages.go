// Package ingest turns wire messages from sensor producers into session
// operations and forwards what they produce to persistence.
package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"swing-service/internal/analytics"
	"swing-service/internal/models"
)

var (
	// ErrMalformedMessage is returned for payloads that are not valid messages.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownMessageType is returned for well-formed messages of an unknown type.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// MessageType is the "type" field of every wire message.
type MessageType string

const (
	TypeSessionStart MessageType = "session_start"
	TypeSensorBatch  MessageType = "sensor_batch"
	TypeSessionEnd   MessageType = "session_end"

	TypeSessionStarted MessageType = "session_started"
	TypeSwingDetected  MessageType = "swing_detected"
	TypeSessionEnded   MessageType = "session_ended"
	TypeError          MessageType = "error"
)

// DefaultDevice is assumed when a producer does not name its device.
const DefaultDevice = "AppleWatch"

// Message is one decoded inbound message: SessionStart, SensorBatch or SessionEnd.
type Message interface {
	Type() MessageType
	Session() string
}

// SessionStart opens a session.
type SessionStart struct {
	SessionID string
	Device    string
	Metadata  map[string]interface{}
}

// SensorBatch carries samples for a session, oldest first.
type SensorBatch struct {
	SessionID string
	Device    string
	Samples   []models.Sample
}

// SessionEnd closes a session.
type SessionEnd struct {
	SessionID string
}

func (SessionStart) Type() MessageType { return TypeSessionStart }
func (SensorBatch) Type() MessageType  { return TypeSensorBatch }
func (SessionEnd) Type() MessageType   { return TypeSessionEnd }
func (m SessionStart) Session() string { return m.SessionID }
func (m SensorBatch) Session() string  { return m.SessionID }
func (m SessionEnd) Session() string   { return m.SessionID }

// WireSample is the flat sample layout sent by the watch. Every field is
// required.
type WireSample struct {
	Timestamp     *float64 `json:"timestamp"`
	RotationRateX *float64 `json:"rotationRateX"`
	RotationRateY *float64 `json:"rotationRateY"`
	RotationRateZ *float64 `json:"rotationRateZ"`
	GravityX      *float64 `json:"gravityX"`
	GravityY      *float64 `json:"gravityY"`
	GravityZ      *float64 `json:"gravityZ"`
	AccelerationX *float64 `json:"accelerationX"`
	AccelerationY *float64 `json:"accelerationY"`
	AccelerationZ *float64 `json:"accelerationZ"`
	QuaternionW   *float64 `json:"quaternionW"`
	QuaternionX   *float64 `json:"quaternionX"`
	QuaternionY   *float64 `json:"quaternionY"`
	QuaternionZ   *float64 `json:"quaternionZ"`
}

// NewWireSample flattens s into the wire layout.
func NewWireSample(s models.Sample) WireSample {
	f := func(v float64) *float64 { return &v }
	return WireSample{
		Timestamp:     f(s.Timestamp),
		RotationRateX: f(s.RotationRate.X),
		RotationRateY: f(s.RotationRate.Y),
		RotationRateZ: f(s.RotationRate.Z),
		GravityX:      f(s.Gravity.X),
		GravityY:      f(s.Gravity.Y),
		GravityZ:      f(s.Gravity.Z),
		AccelerationX: f(s.Acceleration.X),
		AccelerationY: f(s.Acceleration.Y),
		AccelerationZ: f(s.Acceleration.Z),
		QuaternionW:   f(s.Orientation.W),
		QuaternionX:   f(s.Orientation.X),
		QuaternionY:   f(s.Orientation.Y),
		QuaternionZ:   f(s.Orientation.Z),
	}
}

// Sample converts w, reporting the first missing field.
func (w WireSample) Sample() (models.Sample, error) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"timestamp", w.Timestamp},
		{"rotationRateX", w.RotationRateX}, {"rotationRateY", w.RotationRateY}, {"rotationRateZ", w.RotationRateZ},
		{"gravityX", w.GravityX}, {"gravityY", w.GravityY}, {"gravityZ", w.GravityZ},
		{"accelerationX", w.AccelerationX}, {"accelerationY", w.AccelerationY}, {"accelerationZ", w.AccelerationZ},
		{"quaternionW", w.QuaternionW}, {"quaternionX", w.QuaternionX}, {"quaternionY", w.QuaternionY}, {"quaternionZ", w.QuaternionZ},
	}
	for _, f := range fields {
		if f.v == nil {
			return models.Sample{}, fmt.Errorf("missing %s", f.name)
		}
	}
	return models.NewSample(*w.Timestamp,
		models.Vec3{X: *w.RotationRateX, Y: *w.RotationRateY, Z: *w.RotationRateZ},
		models.Vec3{X: *w.GravityX, Y: *w.GravityY, Z: *w.GravityZ},
		models.Vec3{X: *w.AccelerationX, Y: *w.AccelerationY, Z: *w.AccelerationZ},
		models.Quaternion{W: *w.QuaternionW, X: *w.QuaternionX, Y: *w.QuaternionY, Z: *w.QuaternionZ},
	), nil
}

type envelope struct {
	Type      MessageType            `json:"type"`
	SessionID string                 `json:"session_id"`
	Device    string                 `json:"device"`
	Metadata  map[string]interface{} `json:"metadata"`
	Samples   *[]WireSample          `json:"samples"`
}

// Decode parses one inbound message. Errors wrap ErrMalformedMessage or
// ErrUnknownMessageType.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case TypeSessionStart, TypeSensorBatch, TypeSessionEnd:
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
	if env.SessionID == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrMalformedMessage)
	}
	device := env.Device
	if device == "" {
		device = DefaultDevice
	}

	switch env.Type {
	case TypeSessionStart:
		return SessionStart{SessionID: env.SessionID, Device: device, Metadata: env.Metadata}, nil
	case TypeSessionEnd:
		return SessionEnd{SessionID: env.SessionID}, nil
	default:
		if env.Samples == nil {
			return nil, fmt.Errorf("%w: samples is required", ErrMalformedMessage)
		}
		samples := make([]models.Sample, 0, len(*env.Samples))
		for i, ws := range *env.Samples {
			s, err := ws.Sample()
			if err != nil {
				return nil, fmt.Errorf("%w: sample %d: %v", ErrMalformedMessage, i, err)
			}
			samples = append(samples, s)
		}
		return SensorBatch{SessionID: env.SessionID, Device: device, Samples: samples}, nil
	}
}

// Response is one outbound message.
type Response struct {
	Type       MessageType         `json:"type"`
	SessionID  string              `json:"session_id,omitempty"`
	Message    string              `json:"message,omitempty"`
	Swing      *models.SwingRecord `json:"swing,omitempty"`
	Statistics *models.Statistics  `json:"statistics,omitempty"`
}

// Encode renders r as a JSON text message.
func (r Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

func errorResponse(sessionID string, err error) Response {
	return Response{Type: TypeError, SessionID: sessionID, Message: err.Error()}
}

// ShotID names a swing after its UTC time and its number within the session,
// e.g. shot_20251108_024942_003.
func ShotID(e models.SwingEvent) string {
	sec, frac := math.Modf(e.Timestamp)
	t := time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return fmt.Sprintf("shot_%s_%03d", t.Format("20060102_150405"), e.Number)
}

// NewSwingRecord enriches a detected event with its identity, speed estimate
// and type.
func NewSwingRecord(sessionID string, e models.SwingEvent) models.SwingRecord {
	return models.SwingRecord{
		ShotID:                ShotID(e),
		SessionID:             sessionID,
		Timestamp:             e.Timestamp,
		SequenceNumber:        e.Number,
		RotationMagnitude:     e.RotationMagnitude,
		AccelerationMagnitude: e.AccelerationMagnitude,
		SpeedMPH:              analytics.EstimateSpeedMPH(e),
		SwingType:             analytics.ClassifySwing(e),
		SensorData:            e.Sample,
	}
}
