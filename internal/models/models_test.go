package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSampleMagnitudes(t *testing.T) {
	s := NewSample(1.5, Vec3{X: 3, Y: 4}, Vec3{Z: -1}, Vec3{Y: 0.6, Z: 0.8}, Quaternion{W: 1})

	assert.InDelta(t, 5.0, s.RotationMagnitude(), 1e-12)
	assert.InDelta(t, 1.0, s.AccelerationMagnitude(), 1e-12)
}

func TestZeroValueSampleComputesMagnitudes(t *testing.T) {
	s := Sample{RotationRate: Vec3{Z: 2}, Acceleration: Vec3{X: -0.5}}

	assert.InDelta(t, 2.0, s.RotationMagnitude(), 1e-12)
	assert.InDelta(t, 0.5, s.AccelerationMagnitude(), 1e-12)
}

func TestSampleJSONDocument(t *testing.T) {
	s := NewSample(1718329315.25, Vec3{X: 3, Y: 4}, Vec3{Y: -1}, Vec3{X: 1}, Quaternion{W: 0.5, X: 0.5, Y: 0.5, Z: 0.5})

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, 1718329315.25, doc["timestamp"])

	rot := doc["rotation_rate"].(map[string]interface{})
	assert.Equal(t, 5.0, rot["magnitude"])
	assert.Equal(t, 3.0, rot["x"])
	acc := doc["acceleration"].(map[string]interface{})
	assert.Equal(t, 1.0, acc["magnitude"])
	assert.Contains(t, doc, "gravity")
	assert.Contains(t, doc, "quaternion")

	var back Sample
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestSwingRecordJSON(t *testing.T) {
	rec := SwingRecord{
		ShotID:            "shot_20251108_024942_001",
		SessionID:         "watch_1",
		SpeedMPH:          10.5,
		SwingType:         SwingUnknown,
		RotationMagnitude: 3.6,
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "unknown", doc["swing_type"])
	assert.Equal(t, 10.5, doc["estimated_speed_mph"])
	assert.Contains(t, doc, "sensor_data")
}

func TestParseSwingType(t *testing.T) {
	for in, want := range map[string]SwingType{
		"forehand": SwingForehand,
		"backhand": SwingBackhand,
		"serve":    SwingServe,
		"volley":   SwingVolley,
		"unknown":  SwingUnknown,
		"lob":      SwingUnknown,
		"":         SwingUnknown,
	} {
		assert.Equal(t, want, ParseSwingType(in), in)
	}
}
