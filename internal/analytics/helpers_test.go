package analytics

import (
	"math"

	"swing-service/internal/models"
)

// bump is a cosine-shaped rise in rotation magnitude peaking at center.
type bump struct {
	center    int
	amp       float64
	halfWidth int
}

// sampleWithMagnitude builds a sample whose rotation magnitude is exactly mag.
func sampleWithMagnitude(ts, mag float64) models.Sample {
	return models.NewSample(ts,
		models.Vec3{X: mag},
		models.Vec3{Y: -1},
		models.Vec3{X: 0.1, Y: 0.2, Z: 0.05},
		models.Quaternion{W: 1},
	)
}

// bumpStream returns n samples at hz with a 0.5 rad/s baseline and the given bumps.
func bumpStream(n int, hz float64, bumps ...bump) []models.Sample {
	out := make([]models.Sample, n)
	for i := range out {
		mag := 0.5
		for _, b := range bumps {
			d := i - b.center
			if d > -b.halfWidth && d < b.halfWidth {
				v := b.amp * math.Cos(math.Pi/2*float64(d)/float64(b.halfWidth))
				mag = math.Max(mag, v)
			}
		}
		out[i] = sampleWithMagnitude(float64(i)/hz, mag)
	}
	return out
}

func magnitudes(samples []models.Sample) []float64 {
	m := make([]float64, len(samples))
	for i, s := range samples {
		m[i] = s.RotationMagnitude()
	}
	return m
}
