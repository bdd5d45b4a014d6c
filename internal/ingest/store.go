package ingest

import (
	"context"
	"errors"
	"time"

	"swing-service/internal/models"
)

// Store persists what sessions produce. Implementations must tolerate
// StartSession for an existing id and StoreRawBatch for a batch they already
// hold (same session and timestamp range).
type Store interface {
	StartSession(ctx context.Context, rec models.SessionRecord) error
	StoreRawBatch(ctx context.Context, sessionID string, samples []models.Sample) error
	StoreSwing(ctx context.Context, rec models.SwingRecord) error
	UpsertSessionSummary(ctx context.Context, sessionID string, endTime time.Time, shotCount int) error
}

// MultiStore writes every operation to each of its stores in order. A failing
// store does not stop the others; the errors are joined.
type MultiStore []Store

func (m MultiStore) StartSession(ctx context.Context, rec models.SessionRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.StartSession(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m MultiStore) StoreRawBatch(ctx context.Context, sessionID string, samples []models.Sample) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.StoreRawBatch(ctx, sessionID, samples))
	}
	return errors.Join(errs...)
}

func (m MultiStore) StoreSwing(ctx context.Context, rec models.SwingRecord) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.StoreSwing(ctx, rec))
	}
	return errors.Join(errs...)
}

func (m MultiStore) UpsertSessionSummary(ctx context.Context, sessionID string, endTime time.Time, shotCount int) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.UpsertSessionSummary(ctx, sessionID, endTime, shotCount))
	}
	return errors.Join(errs...)
}

// BatchRange returns the lowest and highest timestamp in samples. The pair
// identifies a raw batch for deduplication.
func BatchRange(samples []models.Sample) (start, end float64) {
	for i, s := range samples {
		if i == 0 || s.Timestamp < start {
			start = s.Timestamp
		}
		if i == 0 || s.Timestamp > end {
			end = s.Timestamp
		}
	}
	return start, end
}
