// internal/queue/queue.go
//
// Background recompute queue.
//
// Context
// -------
// Editing a calculated field's template invalidates the stored value of
// every record.  Rather than rewriting the whole table inside the request,
// the resolver pushes one Packet per record and commits the batch with
// SaveAndDispatch.  A Worker drains the backend in bounded slices, hands
// each packet to a Processor, and fires a completion callback once the
// backlog is empty.
//
// Delivery is at-least-once.  A packet is acknowledged only after its
// Processor returns, so a worker that dies mid-slice leaves its claimed
// packets in flight; Recover returns them to the pending list.  Processors
// must therefore be idempotent per (record, field).
//
// Workflow
// --------
//   1.  Push(packet) buffers in memory.
//   2.  SaveAndDispatch writes the buffer to the Backend in chunks and
//       returns the batch id.  Packets already written stay written if a
//       later chunk fails; the rest remain buffered for the next call.
//   3.  Worker.RunOnce claims up to SliceSize packets and processes them
//       one at a time.  Per-record failures are logged, counted, and
//       acknowledged; the slice continues.
//
// Notes
// -----
// • Packet order across records is not guaranteed.
// • Oxford commas, two spaces after periods.

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/metrics"
)

// Packet asks for one record's dynamic field to be recomputed.  Default is
// the template snapshot at dispatch time.
type Packet struct {
	RecordID int64  `json:"record_id"`
	Field    string `json:"field"`
	Default  string `json:"default"`
	Batch    string `json:"batch,omitempty"`
}

// Outcome is the per-record result of processing a packet.
type Outcome int

const (
	Updated Outcome = iota
	Skipped         // stored value already current
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	}
	return "failed"
}

// Processor handles one packet.  A returned error means Failed regardless
// of the Outcome value.
type Processor interface {
	Process(ctx context.Context, p Packet) (Outcome, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, p Packet) (Outcome, error)

func (f ProcessorFunc) Process(ctx context.Context, p Packet) (Outcome, error) { return f(ctx, p) }

// Delivery is a claimed packet.  Token identifies it to Ack.
type Delivery struct {
	Packet Packet
	Token  string
}

// Backend stores pending and in-flight packets.
type Backend interface {
	Push(ctx context.Context, ps []Packet) error
	Claim(ctx context.Context, n int) ([]Delivery, error)
	Ack(ctx context.Context, d Delivery) error
	// Recover moves every in-flight packet back to pending.
	Recover(ctx context.Context) (int, error)
	// Len counts pending plus in-flight packets.
	Len(ctx context.Context) (int64, error)
}

// ErrNothingToDispatch is returned by SaveAndDispatch on an empty buffer.
var ErrNothingToDispatch = errors.New("queue: nothing to dispatch")

// chunkSize bounds one backend write.
const chunkSize = 100

// Dispatcher buffers packets and commits them to a Backend.
type Dispatcher struct {
	backend Backend
	log     *zap.SugaredLogger

	mu      sync.Mutex
	batch   string
	pending []Packet
}

// NewDispatcher wraps b.  A nil logger falls back to the global one.
func NewDispatcher(b Backend, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.S()
	}
	return &Dispatcher{backend: b, log: log}
}

// Backend exposes the underlying store, e.g. for a Worker.
func (d *Dispatcher) Backend() Backend { return d.backend }

// Push buffers p under the current batch.
func (d *Dispatcher) Push(p Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.batch == "" {
		d.batch = uuid.NewString()
	}
	p.Batch = d.batch
	d.pending = append(d.pending, p)
}

// Buffered reports how many packets await SaveAndDispatch, including any
// left by a failed write.
func (d *Dispatcher) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// SaveAndDispatch writes the buffer to the backend and starts a new batch.
// On error, the packets not yet written stay buffered and the batch id is
// kept, so calling again resumes where the failure left off.
func (d *Dispatcher) SaveAndDispatch(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flush(ctx)
}

// Dispatch writes ps as one new batch while holding the buffer, so
// concurrent callers never share a batch id.  A batch left over from an
// earlier failure is written first.  On error the unwritten packets stay
// buffered like SaveAndDispatch leaves them.
func (d *Dispatcher) Dispatch(ctx context.Context, ps []Packet) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) > 0 {
		if _, err := d.flush(ctx); err != nil {
			return "", err
		}
	}
	if len(ps) == 0 {
		return "", ErrNothingToDispatch
	}
	d.batch = uuid.NewString()
	for _, p := range ps {
		p.Batch = d.batch
		d.pending = append(d.pending, p)
	}
	return d.flush(ctx)
}

// flush requires d.mu.
func (d *Dispatcher) flush(ctx context.Context) (string, error) {
	if len(d.pending) == 0 {
		return "", ErrNothingToDispatch
	}
	batch := d.batch
	total := len(d.pending)

	for len(d.pending) > 0 {
		n := min(chunkSize, len(d.pending))
		if err := d.backend.Push(ctx, d.pending[:n]); err != nil {
			d.log.Errorw("recompute dispatch interrupted",
				"batch", batch, "written", total-len(d.pending), "remaining", len(d.pending), "err", err)
			return batch, fmt.Errorf("dispatch batch %s: %w", batch, err)
		}
		d.pending = d.pending[n:]
	}

	d.pending = nil
	d.batch = ""
	metrics.RecomputeJobsTotal.WithLabelValues("queued").Inc()
	d.log.Infow("recompute batch queued", "batch", batch, "packets", total)
	return batch, nil
}
