package analytics

// DebounceGate suppresses peaks that arrive less than MinInterval seconds
// after the last accepted one. Its state spans every scan of a session.
type DebounceGate struct {
	MinInterval float64

	last float64
	set  bool
}

// NewDebounceGate returns a gate with no accepted peak yet.
func NewDebounceGate(minInterval float64) *DebounceGate {
	return &DebounceGate{MinInterval: minInterval}
}

// Allow reports whether a peak at ts passes the gate and, if so, records it.
func (g *DebounceGate) Allow(ts float64) bool {
	if g.set && ts-g.last < g.MinInterval {
		return false
	}
	g.last = ts
	g.set = true
	return true
}

// Last returns the timestamp of the last accepted peak.
func (g *DebounceGate) Last() (float64, bool) {
	return g.last, g.set
}
