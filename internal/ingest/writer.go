package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"swing-service/internal/metrics"
	"swing-service/internal/models"
	"swing-service/internal/monitoring"
)

var (
	// ErrQueueFull is returned when an operation is dropped for lack of room.
	ErrQueueFull = errors.New("persistence queue full")
	// ErrWriterClosed is returned for operations submitted after Close.
	ErrWriterClosed = errors.New("persistence writer closed")
)

// DefaultQueueSize bounds the Writer queue when no size is given.
const DefaultQueueSize = 1024

const opTimeout = 10 * time.Second

type persistOp struct {
	name string
	run  func(ctx context.Context, s Store) error
}

// Writer is a Store that queues operations for a single background worker,
// so detection never waits on disk or network. Operations run in submission
// order. When the queue is full the operation is dropped and counted.
type Writer struct {
	store Store
	ops   chan persistOp
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter starts the worker. size < 1 selects DefaultQueueSize.
func NewWriter(store Store, size int) *Writer {
	if size < 1 {
		size = DefaultQueueSize
	}
	w := &Writer{
		store: store,
		ops:   make(chan persistOp, size),
		done:  make(chan struct{}),
	}
	go w.process()
	return w
}

func (w *Writer) enqueue(op persistOp) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWriterClosed
	}

	select {
	case w.ops <- op:
		metrics.PersistQueueDepth.Inc()
		return nil
	default:
		w.dropped.Add(1)
		metrics.PersistDropped.Inc()
		monitoring.Logf("[ingest] persistence queue full, dropping %s", op.name)
		return ErrQueueFull
	}
}

func (w *Writer) process() {
	defer close(w.done)
	for op := range w.ops {
		metrics.PersistQueueDepth.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		err := op.run(ctx, w.store)
		cancel()
		if err != nil {
			w.failed.Add(1)
			metrics.PersistFailures.WithLabelValues(op.name).Inc()
			monitoring.Logf("[ingest] %s failed: %v", op.name, err)
		}
	}
}

func (w *Writer) StartSession(_ context.Context, rec models.SessionRecord) error {
	return w.enqueue(persistOp{"start_session", func(ctx context.Context, s Store) error {
		return s.StartSession(ctx, rec)
	}})
}

func (w *Writer) StoreRawBatch(_ context.Context, sessionID string, samples []models.Sample) error {
	return w.enqueue(persistOp{"store_raw_batch", func(ctx context.Context, s Store) error {
		return s.StoreRawBatch(ctx, sessionID, samples)
	}})
}

func (w *Writer) StoreSwing(_ context.Context, rec models.SwingRecord) error {
	return w.enqueue(persistOp{"store_swing", func(ctx context.Context, s Store) error {
		return s.StoreSwing(ctx, rec)
	}})
}

func (w *Writer) UpsertSessionSummary(_ context.Context, sessionID string, endTime time.Time, shotCount int) error {
	return w.enqueue(persistOp{"upsert_session_summary", func(ctx context.Context, s Store) error {
		return s.UpsertSessionSummary(ctx, sessionID, endTime, shotCount)
	}})
}

// Dropped is the number of operations dropped on a full queue.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Failed is the number of operations the underlying store rejected.
func (w *Writer) Failed() uint64 { return w.failed.Load() }

// Close stops accepting operations and waits until the queue is drained.
func (w *Writer) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.mu.Unlock()
	<-w.done
	return nil
}
