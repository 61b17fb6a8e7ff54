package analytics

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/assistd/internal/workers"
)

// persistTimeout bounds one background insert.
const persistTimeout = 5 * time.Second

// Sink accepts events without ever failing the caller.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Persister writes events durably. *Store implements it.
type Persister interface {
	Insert(ctx context.Context, e Event) error
}

// Dispatcher buffers every event in memory and, when a Persister is set,
// writes it on a worker pool.
type Dispatcher struct {
	buffer    *Buffer
	persister Persister
	pool      *workers.Pool
	logger    *zap.SugaredLogger
}

// NewDispatcher creates a Dispatcher. persister and pool may both be nil
// for a memory-only sink.
func NewDispatcher(buffer *Buffer, persister Persister, pool *workers.Pool, logger *zap.SugaredLogger) *Dispatcher {
	if buffer == nil {
		buffer = NewBuffer(DefaultBufferSize)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dispatcher{buffer: buffer, persister: persister, pool: pool, logger: logger}
}

// Buffer returns the in-memory ring.
func (d *Dispatcher) Buffer() *Buffer { return d.buffer }

// Record buffers e and schedules persistence. The request context is not
// used for the write, which outlives the request.
func (d *Dispatcher) Record(_ context.Context, e Event) {
	d.buffer.Add(e)

	if d.persister == nil {
		return
	}

	write := func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := d.persister.Insert(ctx, e); err != nil {
			d.logger.Warnw("dropping analytics event", "name", e.Name, "id", e.ID, "error", err)
		}
	}

	if d.pool == nil {
		write()
		return
	}
	if err := d.pool.Submit(write); err != nil {
		d.logger.Warnw("dropping analytics event", "name", e.Name, "id", e.ID, "error", err)
	}
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) {}
