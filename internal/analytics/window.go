package analytics

import "swing-service/internal/models"

// WindowBuffer is a fixed-capacity ring of the most recent samples for one
// session. When full, each append evicts the oldest sample.
type WindowBuffer struct {
	data []models.Sample
	pos  int
	full bool
}

// NewWindowBuffer creates a WindowBuffer holding at most capacity samples.
func NewWindowBuffer(capacity int) *WindowBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &WindowBuffer{data: make([]models.Sample, capacity)}
}

// Append adds samples in order.
func (w *WindowBuffer) Append(samples ...models.Sample) {
	for _, s := range samples {
		w.data[w.pos] = s
		w.pos++
		if w.pos == len(w.data) {
			w.pos = 0
			w.full = true
		}
	}
}

// Len returns the number of buffered samples.
func (w *WindowBuffer) Len() int {
	if w.full {
		return len(w.data)
	}
	return w.pos
}

// Cap returns the buffer capacity.
func (w *WindowBuffer) Cap() int {
	return len(w.data)
}

// At returns the i-th sample, oldest first.
func (w *WindowBuffer) At(i int) models.Sample {
	if w.full {
		return w.data[(w.pos+i)%len(w.data)]
	}
	return w.data[i]
}

// Snapshot returns the buffer contents in insertion order.
func (w *WindowBuffer) Snapshot() []models.Sample {
	n := w.Len()
	out := make([]models.Sample, n)
	if w.full {
		copy(out, w.data[w.pos:])
		copy(out[len(w.data)-w.pos:], w.data[:w.pos])
	} else {
		copy(out, w.data[:w.pos])
	}
	return out
}
