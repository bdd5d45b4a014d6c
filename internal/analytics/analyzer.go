package analytics

import (
	"math"

	"swing-service/internal/models"
)

// Config holds the detection parameters of one session.
type Config struct {
	BufferCapacity  int     // samples kept in the window
	Threshold       float64 // rad/s
	MinDistance     int     // samples between accepted peaks
	MinPeakInterval float64 // seconds between emitted swings
	ScanInterval    int     // accepted samples between scans
	Detect          bool    // realtime detection enabled
}

// DefaultConfig matches a 100 Hz wrist sensor: a 3 s window, 2 rad/s
// threshold and 0.5 s spacing.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:  300,
		Threshold:       2.0,
		MinDistance:     50,
		MinPeakInterval: 0.5,
		ScanInterval:    10,
		Detect:          true,
	}
}

// Result is the outcome of one Process call.
type Result struct {
	Events   []models.SwingEvent
	Rejected int // samples dropped for going back in time
}

// Analyzer is the detection state of one session: window, peak detector,
// debounce gate and counters. It is not safe for concurrent use.
//
// Scans run every ScanInterval accepted samples and once more at the end of a
// Process call that stopped between two scan positions. A peak is only
// emitted once MinDistance samples follow it, so any taller neighbour able to
// suppress it is already in the window, and emitted sequences are never
// reported twice. The same stream therefore yields the same swings however it
// is split into batches.
type Analyzer struct {
	cfg      Config
	window   *WindowBuffer
	detector PeakDetector
	gate     *DebounceGate

	processed uint64
	rejected  uint64
	peaks     uint64

	lastTS  float64
	hasLast bool

	lastSeq uint64
	emitted bool
}

// NewAnalyzer creates an Analyzer with an empty window.
func NewAnalyzer(cfg Config) *Analyzer {
	if cfg.ScanInterval < 1 {
		cfg.ScanInterval = 1
	}
	if cfg.MinDistance < 1 {
		cfg.MinDistance = 1
	}
	w := NewWindowBuffer(cfg.BufferCapacity)
	cfg.BufferCapacity = w.Cap()
	return &Analyzer{
		cfg:      cfg,
		window:   w,
		detector: PeakDetector{Threshold: cfg.Threshold, MinDistance: cfg.MinDistance},
		gate:     NewDebounceGate(cfg.MinPeakInterval),
	}
}

// Config returns the effective configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// Process appends samples to the window and returns the swings that became
// final while doing so, in timestamp order. Samples older than the last
// accepted one are rejected.
func (a *Analyzer) Process(samples []models.Sample) Result {
	var res Result
	pending := false
	for _, s := range samples {
		if math.IsNaN(s.Timestamp) || (a.hasLast && s.Timestamp < a.lastTS) {
			a.rejected++
			res.Rejected++
			continue
		}
		a.window.Append(s)
		a.lastTS = s.Timestamp
		a.hasLast = true
		a.processed++
		pending = true

		if a.cfg.Detect && a.processed%uint64(a.cfg.ScanInterval) == 0 {
			res.Events = append(res.Events, a.scan(a.cfg.MinDistance)...)
			pending = false
		}
	}
	// Samples past the last scan position may have settled a peak; report it
	// now rather than with the next batch.
	if a.cfg.Detect && pending {
		res.Events = append(res.Events, a.scan(a.cfg.MinDistance)...)
	}
	return res
}

// Flush scans the window one last time without waiting for trailing
// context. Call it when the session ends.
func (a *Analyzer) Flush() []models.SwingEvent {
	if !a.cfg.Detect {
		return nil
	}
	return a.scan(0)
}

func (a *Analyzer) scan(settle int) []models.SwingEvent {
	if a.window.Len() < a.detector.MinInput() {
		return nil
	}
	snap := a.window.Snapshot()
	n := len(snap)
	base := a.processed - uint64(n)

	var out []models.SwingEvent
	for _, p := range a.detector.Scan(snap) {
		if p.Index > n-1-settle {
			break
		}
		seq := base + uint64(p.Index)
		if a.emitted && seq < a.lastSeq+uint64(a.cfg.MinDistance) {
			continue
		}
		if !a.gate.Allow(p.Sample.Timestamp) {
			continue
		}
		a.lastSeq = seq
		a.emitted = true
		a.peaks++
		out = append(out, models.SwingEvent{
			Number:                a.peaks,
			Timestamp:             p.Sample.Timestamp,
			IndexInWindow:         p.Index,
			Sequence:              seq,
			RotationMagnitude:     p.Magnitude,
			AccelerationMagnitude: p.Sample.AccelerationMagnitude(),
			Sample:                p.Sample,
		})
	}
	return out
}

// Processed is the number of accepted samples.
func (a *Analyzer) Processed() uint64 { return a.processed }

// Rejected is the number of samples dropped for non-monotonic timestamps.
func (a *Analyzer) Rejected() uint64 { return a.rejected }

// Peaks is the number of emitted swings.
func (a *Analyzer) Peaks() uint64 { return a.peaks }

// LastSwing returns the timestamp of the most recent emitted swing.
func (a *Analyzer) LastSwing() (float64, bool) { return a.gate.Last() }

// Occupancy is the number of samples currently in the window.
func (a *Analyzer) Occupancy() int { return a.window.Len() }
