package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peakIndexes(peaks []Peak) []int {
	idx := []int{}
	for _, p := range peaks {
		idx = append(idx, p.Index)
	}
	return idx
}

func TestPeakDetectorFind(t *testing.T) {
	d := PeakDetector{Threshold: 2.0, MinDistance: 3}

	tests := []struct {
		name string
		m    []float64
		want []int
	}{
		{"below threshold", []float64{0, 1, 1.9, 1, 0, 1.5, 0}, []int{}},
		{"single peak", []float64{0, 1, 3, 1, 0, 0, 0}, []int{2}},
		{"endpoints are never peaks", []float64{5, 1, 0, 0, 1, 5}, []int{}},
		{"close peaks keep the taller", []float64{0, 2.5, 0, 4, 0, 0, 0}, []int{3}},
		{"tie keeps the earlier", []float64{0, 3, 0, 3, 0, 0, 0}, []int{1}},
		{"plateau keeps its first sample", []float64{0, 3, 3, 3, 0, 0, 0}, []int{1}},
		{"distant peaks both kept", []float64{0, 3, 0, 0, 0, 2.5, 0}, []int{1, 5}},
		{"suppressed peak does not suppress", []float64{0, 2.1, 0, 2.5, 0, 3, 0, 0}, []int{1, 5}},
		{"too short", []float64{0, 3, 0, 0, 0}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, peakIndexes(d.Find(tt.m)))
		})
	}
}

func TestPeakDetectorSingleBump(t *testing.T) {
	samples := bumpStream(300, 100, bump{center: 140, amp: 3.5, halfWidth: 20})
	d := PeakDetector{Threshold: 2.0, MinDistance: 50}

	peaks := d.Scan(samples)
	require.Len(t, peaks, 1)
	assert.Equal(t, 140, peaks[0].Index)
	assert.InDelta(t, 3.5, peaks[0].Magnitude, 1e-9)
	assert.Equal(t, samples[140].Timestamp, peaks[0].Sample.Timestamp)
}

func TestPeakDetectorBumpsCloserThanMinDistance(t *testing.T) {
	d := PeakDetector{Threshold: 2.0, MinDistance: 50}

	lowFirst := bumpStream(300, 100, bump{center: 120, amp: 3, halfWidth: 10}, bump{center: 150, amp: 4, halfWidth: 10})
	assert.Equal(t, []int{150}, peakIndexes(d.Scan(lowFirst)))

	equal := bumpStream(300, 100, bump{center: 120, amp: 3, halfWidth: 10}, bump{center: 150, amp: 3, halfWidth: 10})
	assert.Equal(t, []int{120}, peakIndexes(d.Scan(equal)))

	apart := bumpStream(300, 100, bump{center: 100, amp: 3, halfWidth: 10}, bump{center: 150, amp: 4, halfWidth: 10})
	assert.Equal(t, []int{100, 150}, peakIndexes(d.Scan(apart)))
}

func TestPeakDetectorDefersShortInput(t *testing.T) {
	d := PeakDetector{Threshold: 2.0, MinDistance: 50}
	samples := bumpStream(99, 100, bump{center: 50, amp: 3, halfWidth: 10})
	assert.Empty(t, d.Scan(samples))
	assert.Equal(t, 100, d.MinInput())

	samples = bumpStream(100, 100, bump{center: 50, amp: 3, halfWidth: 10})
	assert.Len(t, d.Scan(samples), 1)
}

func TestPeakDetectorZeroDistance(t *testing.T) {
	d := PeakDetector{Threshold: 1}
	assert.Equal(t, []int{1, 3}, peakIndexes(d.Find([]float64{0, 2, 0, 2, 0})))
}
