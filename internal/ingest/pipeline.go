package ingest

import (
	"context"
	"errors"
	"fmt"

	"swing-service/internal/metrics"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
	"swing-service/internal/session"
	"swing-service/internal/timeutil"
)

// Pipeline dispatches decoded messages to the session registry and forwards
// raw batches, swings and session summaries to a Store. It is safe for
// concurrent use by any number of transports.
type Pipeline struct {
	registry *session.Registry
	store    Store
	clock    timeutil.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for stored session start times.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// NewPipeline creates a Pipeline. A nil store disables persistence.
func NewPipeline(registry *session.Registry, store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry: registry,
		store:    store,
		clock:    timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the session registry the pipeline feeds.
func (p *Pipeline) Registry() *session.Registry {
	return p.registry
}

// Realtime reports whether sessions run swing detection.
func (p *Pipeline) Realtime() bool {
	return p.registry.Config().Detect
}

// Handle decodes one raw message and dispatches it. Decoding failures become
// a single error response.
func (p *Pipeline) Handle(ctx context.Context, transport string, raw []byte) []Response {
	_, out := p.HandleMessage(ctx, transport, raw)
	return out
}

// HandleMessage is Handle that also returns the decoded message, or nil when
// raw could not be decoded. Transports use it to track session ownership.
func (p *Pipeline) HandleMessage(ctx context.Context, transport string, raw []byte) (Message, []Response) {
	msg, err := Decode(raw)
	if err != nil {
		label := "invalid"
		if errors.Is(err, ErrUnknownMessageType) {
			label = "unknown"
		}
		metrics.MessagesTotal.WithLabelValues(label, transport).Inc()
		return nil, []Response{errorResponse("", err)}
	}
	metrics.MessagesTotal.WithLabelValues(string(msg.Type()), transport).Inc()
	return msg, p.Dispatch(ctx, msg)
}

// Dispatch runs one decoded message and returns the responses for the sender,
// in order.
func (p *Pipeline) Dispatch(ctx context.Context, msg Message) []Response {
	var out []Response
	switch m := msg.(type) {
	case SessionStart:
		out = p.startSession(ctx, m)
	case SensorBatch:
		out = p.ingestBatch(ctx, m)
	case SessionEnd:
		out = p.endSession(ctx, m)
	default:
		out = []Response{errorResponse(msg.Session(), fmt.Errorf("%w: %T", ErrUnknownMessageType, msg))}
	}
	metrics.ActiveSessions.Set(float64(p.registry.Len()))
	return out
}

func (p *Pipeline) startSession(ctx context.Context, m SessionStart) []Response {
	_, created := p.registry.Start(m.SessionID, m.Device)
	if !created {
		return []Response{{
			Type:      TypeSessionStarted,
			SessionID: m.SessionID,
			Message:   fmt.Sprintf("Session %s already active", m.SessionID),
		}}
	}
	p.persistSession(ctx, m.SessionID, m.Device, m.Metadata)
	return []Response{{
		Type:      TypeSessionStarted,
		SessionID: m.SessionID,
		Message:   fmt.Sprintf("Session %s started", m.SessionID),
	}}
}

func (p *Pipeline) ingestBatch(ctx context.Context, m SensorBatch) []Response {
	if _, created := p.registry.Start(m.SessionID, m.Device); created {
		monitoring.Logf("[ingest] auto-started session %s", m.SessionID)
		p.persistSession(ctx, m.SessionID, m.Device, nil)
	}
	if len(m.Samples) > 0 && p.store != nil {
		if err := p.store.StoreRawBatch(ctx, m.SessionID, m.Samples); err != nil {
			monitoring.Logf("[ingest] raw batch for %s not persisted: %v", m.SessionID, err)
		}
	}

	res, err := p.registry.Ingest(m.SessionID, m.Device, m.Samples)
	if err != nil {
		return []Response{errorResponse(m.SessionID, err)}
	}
	if res.Provisioned {
		p.persistSession(ctx, m.SessionID, m.Device, nil)
	}
	metrics.SamplesIngested.Add(float64(len(m.Samples) - res.Rejected))

	out := p.swingResponses(ctx, m.SessionID, res.Events)
	if res.Rejected > 0 {
		metrics.SamplesRejected.Add(float64(res.Rejected))
		out = append(out, Response{
			Type:      TypeError,
			SessionID: m.SessionID,
			Message:   fmt.Sprintf("%d of %d samples rejected: timestamps must not decrease", res.Rejected, len(m.Samples)),
		})
	}
	return out
}

func (p *Pipeline) endSession(ctx context.Context, m SessionEnd) []Response {
	sum, err := p.registry.End(m.SessionID)
	if err != nil {
		return []Response{errorResponse(m.SessionID, err)}
	}
	out := p.swingResponses(ctx, m.SessionID, sum.FinalEvents)

	stats := sum.Statistics
	if p.store != nil {
		endTime := p.clock.Now()
		if stats.EndedAt != nil {
			endTime = *stats.EndedAt
		}
		if err := p.store.UpsertSessionSummary(ctx, m.SessionID, endTime, int(stats.PeaksDetected)); err != nil {
			monitoring.Logf("[ingest] summary for %s not persisted: %v", m.SessionID, err)
		}
	}
	return append(out, Response{Type: TypeSessionEnded, SessionID: m.SessionID, Statistics: &stats})
}

// EndSession ends id if it is still active, discarding the responses. Used
// when the producer's connection goes away.
func (p *Pipeline) EndSession(ctx context.Context, id string) {
	if _, ok := p.registry.Get(id); !ok {
		return
	}
	p.Dispatch(ctx, SessionEnd{SessionID: id})
}

func (p *Pipeline) swingResponses(ctx context.Context, sessionID string, events []models.SwingEvent) []Response {
	out := make([]Response, 0, len(events))
	for _, e := range events {
		rec := NewSwingRecord(sessionID, e)
		metrics.SwingsDetected.Inc()
		monitoring.Logf("[ingest] swing %s: %.2f rad/s, ~%.1f mph", rec.ShotID, rec.RotationMagnitude, rec.SpeedMPH)
		if p.store != nil {
			if err := p.store.StoreSwing(ctx, rec); err != nil {
				monitoring.Logf("[ingest] swing %s not persisted: %v", rec.ShotID, err)
			}
		}
		out = append(out, Response{Type: TypeSwingDetected, SessionID: sessionID, Swing: &rec})
	}
	return out
}

func (p *Pipeline) persistSession(ctx context.Context, id, device string, metadata map[string]interface{}) {
	if p.store == nil {
		return
	}
	rec := models.SessionRecord{
		SessionID: id,
		Device:    device,
		StartTime: p.clock.Now(),
		Metadata:  metadata,
	}
	if err := p.store.StartSession(ctx, rec); err != nil {
		monitoring.Logf("[ingest] session %s not persisted: %v", id, err)
	}
}
