package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"swing-service/internal/analytics"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
	"swing-service/internal/timeutil"
)

// IngestResult is the outcome of Registry.Ingest.
type IngestResult struct {
	Events      []models.SwingEvent
	Rejected    int
	Provisioned bool // the session was created by this call
}

// Registry maps session ids to controllers. Its lock covers only the map;
// detection work runs under each controller's own lock.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Controller

	cfg   analytics.Config
	clock timeutil.Clock
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used for session timing.
func WithClock(c timeutil.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// NewRegistry creates an empty registry whose sessions use cfg.
func NewRegistry(cfg analytics.Config, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Controller),
		cfg:      cfg,
		clock:    timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the detection parameters given to new sessions.
func (r *Registry) Config() analytics.Config {
	return r.cfg
}

// Start returns the active controller for id, creating it if needed. The
// first caller wins; later calls get the existing controller and false.
func (r *Registry) Start(id, device string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.sessions[id]; ok {
		return c, false
	}
	c := newController(id, device, r.cfg, r.clock)
	r.sessions[id] = c
	monitoring.Logf("[session] started %s (%s)", id, device)
	return c, true
}

// Get returns the active controller for id.
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	return c, ok
}

// Ingest routes samples to id's controller. Unknown ids are started on the
// fly so producers may skip the explicit start message.
func (r *Registry) Ingest(id, device string, samples []models.Sample) (IngestResult, error) {
	provisioned := false
	for attempt := 0; attempt < 2; attempt++ {
		c, created := r.Start(id, device)
		provisioned = provisioned || created
		if created {
			monitoring.Logf("[session] auto-started %s on first batch", id)
		}

		res, err := c.Ingest(samples)
		if errors.Is(err, ErrSessionEnded) {
			// ended between lookup and ingest; the next Start provisions a fresh one
			continue
		}
		if err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Events: res.Events, Rejected: res.Rejected, Provisioned: provisioned}, nil
	}
	return IngestResult{}, fmt.Errorf("%w: %s", ErrSessionEnded, id)
}

// End finalizes id, removes it from the registry and returns its summary.
func (r *Registry) End(id string) (Summary, error) {
	r.mu.Lock()
	c, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sum, err := c.end()
	if err != nil {
		return Summary{}, err
	}
	monitoring.Logf("[session] ended %s: %d samples, %d swings, %.1fs",
		id, sum.Statistics.SamplesProcessed, sum.Statistics.PeaksDetected, sum.Statistics.ElapsedSeconds)
	return sum, nil
}

// Statistics returns the live statistics of id.
func (r *Registry) Statistics(id string) (models.Statistics, error) {
	c, ok := r.Get(id)
	if !ok {
		return models.Statistics{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return c.Statistics(), nil
}

// Snapshot returns the statistics of every active session.
func (r *Registry) Snapshot() map[string]models.Statistics {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	out := make(map[string]models.Statistics, len(controllers))
	for _, c := range controllers {
		out[c.ID()] = c.Statistics()
	}
	return out
}

// IDs returns the active session ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EndAll ends every active session, typically on shutdown.
func (r *Registry) EndAll() map[string]Summary {
	out := make(map[string]Summary)
	for _, id := range r.IDs() {
		if sum, err := r.End(id); err == nil {
			out[id] = sum
		}
	}
	return out
}
