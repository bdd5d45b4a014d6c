// Package session owns the lifecycle of live sensor sessions: one Controller
// per session, kept in a Registry for as long as the session is active.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"swing-service/internal/analytics"
	"swing-service/internal/models"
	"swing-service/internal/timeutil"
)

var (
	// ErrSessionNotFound is returned for ids that are not active.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when ingesting into a controller that has ended.
	ErrSessionEnded = errors.New("session ended")
)

// Summary is what a session leaves behind when it ends.
type Summary struct {
	Statistics  models.Statistics
	FinalEvents []models.SwingEvent
}

// Controller serializes every operation on one session's detection state.
type Controller struct {
	mu sync.Mutex

	id        string
	device    string
	status    models.SessionStatus
	startedAt time.Time
	endedAt   time.Time

	analyzer *analytics.Analyzer
	cfg      analytics.Config
	final    models.Statistics
	clock    timeutil.Clock
}

func newController(id, device string, cfg analytics.Config, clock timeutil.Clock) *Controller {
	a := analytics.NewAnalyzer(cfg)
	return &Controller{
		id:        id,
		device:    device,
		status:    models.StatusActive,
		startedAt: clock.Now(),
		analyzer:  a,
		cfg:       a.Config(),
		clock:     clock,
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Device returns the device name given when the session started.
func (c *Controller) Device() string { return c.device }

// StartedAt returns when the session was created.
func (c *Controller) StartedAt() time.Time { return c.startedAt }

// Ingest feeds samples to the session's analyzer.
func (c *Controller) Ingest(samples []models.Sample) (analytics.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != models.StatusActive {
		return analytics.Result{}, fmt.Errorf("%w: %s", ErrSessionEnded, c.id)
	}
	return c.analyzer.Process(samples), nil
}

// Statistics returns a consistent snapshot; it keeps working after End.
func (c *Controller) Statistics() models.Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == models.StatusEnded {
		return c.final
	}
	return c.statsLocked(c.clock.Since(c.startedAt))
}

func (c *Controller) end() (Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == models.StatusEnded {
		return Summary{}, fmt.Errorf("%w: %s", ErrSessionNotFound, c.id)
	}
	events := c.analyzer.Flush()
	c.endedAt = c.clock.Now()
	c.status = models.StatusEnded
	c.final = c.statsLocked(c.endedAt.Sub(c.startedAt))
	c.analyzer = nil
	return Summary{Statistics: c.final, FinalEvents: events}, nil
}

func (c *Controller) statsLocked(d time.Duration) models.Statistics {
	elapsed := d.Seconds()
	processed := c.analyzer.Processed()

	stats := models.Statistics{
		SessionID:        c.id,
		Device:           c.device,
		Status:           c.status,
		SamplesProcessed: processed,
		SamplesRejected:  c.analyzer.Rejected(),
		PeaksDetected:    c.analyzer.Peaks(),
		BufferOccupancy:  c.analyzer.Occupancy(),
		BufferCapacity:   c.cfg.BufferCapacity,
		ElapsedSeconds:   elapsed,
		Threshold:        c.cfg.Threshold,
		MinDistance:      c.cfg.MinDistance,
		StartedAt:        c.startedAt,
	}
	if elapsed > 0 {
		stats.SampleRateHz = float64(processed) / elapsed
	}
	if ts, ok := c.analyzer.LastSwing(); ok {
		stats.LastSwingAt = &ts
	}
	if c.status == models.StatusEnded {
		endedAt := c.endedAt
		stats.EndedAt = &endedAt
	}
	return stats
}
