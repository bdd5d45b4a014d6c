package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"swing-service/internal/models"
)

var sampleColumns = []string{
	"rotationRateX", "rotationRateY", "rotationRateZ",
	"gravityX", "gravityY", "gravityZ",
	"accelerationX", "accelerationY", "accelerationZ",
	"quaternionW", "quaternionX", "quaternionY", "quaternionZ",
}

// readWristMotion parses a WristMotion export. Timestamps come from "time"
// when it holds epoch nanoseconds, otherwise from "seconds_elapsed".
func readWristMotion(r io.Reader) ([]models.Sample, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range sampleColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}
	timeCol, hasTime := col["time"]
	elapsedCol, hasElapsed := col["seconds_elapsed"]
	if !hasTime && !hasElapsed {
		return nil, fmt.Errorf("missing column \"time\" or \"seconds_elapsed\"")
	}

	var out []models.Sample
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(i int) (float64, error) {
			v, err := strconv.ParseFloat(row[i], 64)
			if err != nil {
				return 0, fmt.Errorf("line %d, column %s: %w", line, header[i], err)
			}
			return v, nil
		}

		var ts float64
		if hasTime {
			if ts, err = field(timeCol); err != nil {
				return nil, err
			}
		}
		switch {
		case hasTime && ts > 1e12:
			ts /= 1e9
		case hasElapsed:
			if ts, err = field(elapsedCol); err != nil {
				return nil, err
			}
		}

		var v [13]float64
		for i, name := range sampleColumns {
			if v[i], err = field(col[name]); err != nil {
				return nil, err
			}
		}
		out = append(out, models.NewSample(ts,
			models.Vec3{X: v[0], Y: v[1], Z: v[2]},
			models.Vec3{X: v[3], Y: v[4], Z: v[5]},
			models.Vec3{X: v[6], Y: v[7], Z: v[8]},
			models.Quaternion{W: v[9], X: v[10], Y: v[11], Z: v[12]},
		))
	}
	return out, nil
}
