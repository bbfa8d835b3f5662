package journal

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/reasoning/engine"
)

const (
	// saveTimeout bounds one journal write.
	saveTimeout = 5 * time.Second
	// queueSize is the number of finished runs buffered ahead of the writer.
	queueSize = 64
)

// Recorder saves every finished diagnosis to a Store. Writes happen on a
// background goroutine so the run that finished is not held up by the
// database; Close drains what is queued.
type Recorder struct {
	engine.NopHooks
	store  Store
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan *Record
	done   chan struct{}
}

// NewRecorder returns hooks writing to store and starts the writer.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan *Record, queueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// RunFinished queues d for saving. When the queue is full, or the recorder
// is closed, d is saved inline so no diagnosis is lost. Failures are
// logged; the run result is unaffected.
func (r *Recorder) RunFinished(_ context.Context, run engine.RunInfo, d *engine.Diagnosis) {
	rec, err := FromDiagnosis(d)
	if err != nil {
		r.logger.Error("failed to encode diagnosis", zap.String("run_id", run.RunID), zap.Error(err))
		return
	}

	r.mu.RLock()
	if !r.closed {
		select {
		case r.queue <- rec:
			r.mu.RUnlock()
			return
		default:
			r.logger.Warn("journal queue full, saving inline", zap.String("run_id", rec.RunID))
		}
	}
	r.mu.RUnlock()
	r.save(rec)
}

// Close stops accepting queued writes and waits for the queue to drain.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		r.save(rec)
	}
}

func (r *Recorder) save(rec *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		r.logger.Error("failed to save diagnosis", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}
