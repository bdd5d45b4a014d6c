package analytics

import (
	"sort"

	"swing-service/internal/models"
)

// Peak is an accepted local maximum of the rotation magnitude signal.
type Peak struct {
	Index     int
	Magnitude float64
	Sample    models.Sample
}

// PeakDetector finds local maxima at or above Threshold that are at least
// MinDistance samples apart. Height wins over position when two candidates
// compete, and the earlier index wins an exact tie.
type PeakDetector struct {
	Threshold   float64
	MinDistance int
}

func (d PeakDetector) minDistance() int {
	if d.MinDistance < 1 {
		return 1
	}
	return d.MinDistance
}

// MinInput is the smallest sequence length Find will analyse.
func (d PeakDetector) MinInput() int {
	return 2 * d.minDistance()
}

// Find returns accepted peaks of m ordered by index. Inputs shorter than
// MinInput yield nothing.
func (d PeakDetector) Find(m []float64) []Peak {
	n := len(m)
	dist := d.minDistance()
	if n < 3 || n < 2*dist {
		return nil
	}

	var cands []int
	for i := 1; i < n-1; i++ {
		if m[i] >= d.Threshold && m[i] >= m[i-1] && m[i] >= m[i+1] {
			cands = append(cands, i)
		}
	}
	if len(cands) == 0 {
		return nil
	}

	order := make([]int, len(cands))
	for k := range order {
		order[k] = k
	}
	sort.Slice(order, func(a, b int) bool {
		ia, ib := cands[order[a]], cands[order[b]]
		if m[ia] != m[ib] {
			return m[ia] > m[ib]
		}
		return ia < ib
	})

	keep := make([]bool, len(cands))
	for k := range keep {
		keep[k] = true
	}
	for _, k := range order {
		if !keep[k] {
			continue
		}
		i := cands[k]
		for j := k - 1; j >= 0 && i-cands[j] < dist; j-- {
			keep[j] = false
		}
		for j := k + 1; j < len(cands) && cands[j]-i < dist; j++ {
			keep[j] = false
		}
	}

	peaks := make([]Peak, 0, len(cands))
	for k, i := range cands {
		if keep[k] {
			peaks = append(peaks, Peak{Index: i, Magnitude: m[i]})
		}
	}
	return peaks
}

// Scan runs Find over the rotation magnitudes of samples and attaches the
// originating sample to each peak.
func (d PeakDetector) Scan(samples []models.Sample) []Peak {
	if len(samples) < d.MinInput() {
		return nil
	}
	m := make([]float64, len(samples))
	for i, s := range samples {
		m[i] = s.RotationMagnitude()
	}
	peaks := d.Find(m)
	for k := range peaks {
		peaks[k].Sample = samples[peaks[k].Index]
	}
	return peaks
}
