package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/metrics"
)

// Stats tallies per-record outcomes for one batch.
type Stats struct {
	Updated int
	Skipped int
	Failed  int
}

// Total is the number of packets processed.
func (s Stats) Total() int { return s.Updated + s.Skipped + s.Failed }

// CompleteFunc runs when the backlog drains, once per batch seen since the
// previous drain.
type CompleteFunc func(batch string, s Stats)

// Worker drains a Backend.
type Worker struct {
	backend    Backend
	proc       Processor
	sliceSize  int
	interval   time.Duration
	onComplete CompleteFunc
	log        *zap.SugaredLogger

	mu      sync.Mutex
	batches map[string]*Stats
}

// WorkerOptions tunes NewWorker.
type WorkerOptions struct {
	SliceSize    int
	PollInterval time.Duration
	OnComplete   CompleteFunc
	Logger       *zap.SugaredLogger
}

// NewWorker binds a processor to a backend.
func NewWorker(b Backend, p Processor, o WorkerOptions) *Worker {
	if o.SliceSize <= 0 {
		o.SliceSize = 50
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.S()
	}
	return &Worker{
		backend:    b,
		proc:       p,
		sliceSize:  o.SliceSize,
		interval:   o.PollInterval,
		onComplete: o.OnComplete,
		log:        o.Logger,
		batches:    map[string]*Stats{},
	}
}

// RunOnce processes one bounded slice and reports how many packets it
// handled.  When the backlog is empty afterwards, completion callbacks
// fire.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ds, err := w.backend.Claim(ctx, w.sliceSize)
	if err != nil && len(ds) == 0 {
		return 0, err
	}

	for _, d := range ds {
		w.handle(ctx, d)
	}

	left, lerr := w.backend.Len(ctx)
	if lerr == nil && left == 0 {
		w.complete()
	}
	if err == nil {
		err = lerr
	}
	return len(ds), err
}

func (w *Worker) handle(ctx context.Context, d Delivery) {
	p := d.Packet
	log := w.log.With("batch", p.Batch, "record_id", p.RecordID, "field", p.Field)
	pctx := logger.WithContext(ctx, log)

	out, err := w.safeProcess(pctx, p)
	if err != nil {
		out = Failed
		log.Errorw("recompute record failed", "err", err)
	}
	metrics.RecomputeRecordsTotal.WithLabelValues(out.String()).Inc()

	w.mu.Lock()
	s := w.batches[p.Batch]
	if s == nil {
		s = &Stats{}
		w.batches[p.Batch] = s
	}
	switch out {
	case Updated:
		s.Updated++
	case Skipped:
		s.Skipped++
	default:
		s.Failed++
	}
	w.mu.Unlock()

	if err := w.backend.Ack(ctx, d); err != nil {
		log.Warnw("ack failed; packet may be delivered again", "err", err)
	}
}

// safeProcess turns a processor panic into a failed record.
func (w *Worker) safeProcess(ctx context.Context, p Packet) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = Failed, &panicError{v: r}
		}
	}()
	return w.proc.Process(ctx, p)
}

type panicError struct{ v any }

func (e *panicError) Error() string { return "panic: " + toString(e.v) }

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	}
	return "non-error value"
}

func (w *Worker) complete() {
	w.mu.Lock()
	done := w.batches
	w.batches = map[string]*Stats{}
	w.mu.Unlock()

	for batch, s := range done {
		metrics.RecomputeJobsTotal.WithLabelValues("complete").Inc()
		w.log.Infow("recompute batch complete",
			"batch", batch, "updated", s.Updated, "skipped", s.Skipped, "failed", s.Failed)
		if w.onComplete != nil {
			w.onComplete(batch, *s)
		}
	}
}

// Run recovers orphaned packets, then polls until ctx is cancelled.  A
// full slice is followed immediately by the next one; an empty or short
// slice waits one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	if n, err := w.backend.Recover(ctx); err != nil {
		w.log.Warnw("recover in-flight packets", "err", err)
	} else if n > 0 {
		w.log.Infow("requeued in-flight packets", "count", n)
	}

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		n, err := w.RunOnce(ctx)
		if err != nil {
			w.log.Errorw("queue slice", "err", err)
		}
		if n == w.sliceSize && err == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// Drain runs slices until the backlog is empty or ctx ends.  The CLI and
// tests use it.
func (w *Worker) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}
