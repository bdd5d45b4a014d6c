package store

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"swing-service/internal/models"
)

// Raw batches are stored as gzip-compressed CSV, one sample per row:
// timestamp, rotation x/y/z, acceleration x/y/z, gravity x/y/z, quaternion w/x/y/z.
const rawColumns = 14

func encodeRawBatch(samples []models.Sample) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	cw := csv.NewWriter(zw)

	row := make([]string, rawColumns)
	for _, s := range samples {
		vals := [rawColumns]float64{
			s.Timestamp,
			s.RotationRate.X, s.RotationRate.Y, s.RotationRate.Z,
			s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z,
			s.Gravity.X, s.Gravity.Y, s.Gravity.Z,
			s.Orientation.W, s.Orientation.X, s.Orientation.Y, s.Orientation.Z,
		}
		for i, v := range vals {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRawBatch(data []byte) ([]models.Sample, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip payload: %w", err)
	}
	defer zr.Close()

	cr := csv.NewReader(zr)
	cr.FieldsPerRecord = rawColumns
	var out []models.Sample
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read raw row: %w", err)
		}
		var v [rawColumns]float64
		for i, field := range row {
			if v[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, fmt.Errorf("failed to parse raw column %d: %w", i, err)
			}
		}
		out = append(out, models.NewSample(v[0],
			models.Vec3{X: v[1], Y: v[2], Z: v[3]},
			models.Vec3{X: v[7], Y: v[8], Z: v[9]},
			models.Vec3{X: v[4], Y: v[5], Z: v[6]},
			models.Quaternion{W: v[10], X: v[11], Y: v[12], Z: v[13]},
		))
	}
	return out, nil
}
