package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// EventSource is the exchange's event feed.
type EventSource interface {
	SubscribeEvents(ch chan<- dex.Event) event.Subscription
}

// RecorderConfig holds the configuration for a Recorder.
type RecorderConfig struct {
	Source EventSource
	// Writers are keyed by a short name used in logs and metrics.
	Writers map[string]EventWriter
	// BatchSize flushes once this many events are pending.
	BatchSize int
	// FlushInterval flushes pending events at least this often.
	FlushInterval time.Duration
	// QueueSize bounds events held between the feed and the writers. Events arriving at a
	// full queue are dropped and counted.
	QueueSize int
	Logger    Logger
	Registry  prometheus.Registerer
}

func (c *RecorderConfig) validate() error {
	if c.Source == nil {
		return errors.New("config: Source is required")
	}
	if len(c.Writers) == 0 {
		return errors.New("config: at least one writer is required")
	}
	for name, w := range c.Writers {
		if w == nil {
			return errors.New("config: writer " + name + " is nil")
		}
	}
	if c.BatchSize < 0 || c.FlushInterval < 0 || c.QueueSize < 0 {
		return errors.New("config: BatchSize, FlushInterval and QueueSize cannot be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	return nil
}

type recorderMetrics struct {
	written *prometheus.CounterVec
	failed  *prometheus.CounterVec
	dropped prometheus.Counter
}

func newRecorderMetrics(reg prometheus.Registerer) *recorderMetrics {
	m := &recorderMetrics{
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_events_written_total",
			Help: "Events written, by writer.",
		}, []string{"writer"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_write_failures_total",
			Help: "Failed batch writes, by writer.",
		}, []string{"writer"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_events_dropped_total",
			Help: "Events dropped because the recorder queue was full.",
		}),
	}
	reg.MustRegister(m.written, m.failed, m.dropped)
	return m
}

// Recorder copies exchange events into one or more writers.
//
// Receiving from the feed never waits on a writer, so a slow database cannot stall the
// exchange; the cost is that a full queue drops events.
type Recorder struct {
	source        EventSource
	writers       map[string]EventWriter
	names         []string
	batchSize     int
	flushInterval time.Duration
	queueSize     int
	logger        Logger
	metrics       *recorderMetrics
}

func NewRecorder(cfg *RecorderConfig) (*Recorder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Recorder{
		source:        cfg.Source,
		writers:       cfg.Writers,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		queueSize:     cfg.QueueSize,
		logger:        cfg.Logger,
		metrics:       newRecorderMetrics(cfg.Registry),
	}
	if r.batchSize == 0 {
		r.batchSize = defaultBatchSize
	}
	if r.flushInterval == 0 {
		r.flushInterval = defaultFlushInterval
	}
	if r.queueSize == 0 {
		r.queueSize = r.batchSize * 16
	}
	for name := range r.writers {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Run records events until ctx is cancelled or the feed closes, then flushes what is
// pending.
func (r *Recorder) Run(ctx context.Context) error {
	events := make(chan dex.Event, r.batchSize)
	sub := r.source.SubscribeEvents(events)
	defer sub.Unsubscribe()

	queue := make(chan dex.Event, r.queueSize)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(queue)
		for {
			select {
			case ev := <-events:
				select {
				case queue <- ev:
				default:
					r.metrics.dropped.Inc()
					r.logger.Warn("recorder queue full, dropping event", "sequence", ev.Sequence, "type", ev.Type)
				}
			case <-sub.Err():
				return
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	r.logger.Info("recorder started", "writers", r.names, "batch_size", r.batchSize)
	pending := make([]dex.Event, 0, r.batchSize)
	for {
		select {
		case ev, ok := <-queue:
			if !ok {
				// drain whatever the relay queued before stopping
				r.shutdown(pending)
				return nil
			}
			pending = append(pending, ev)
			if len(pending) >= r.batchSize {
				r.flush(ctx, pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				r.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (r *Recorder) shutdown(pending []dex.Event) {
	if len(pending) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	r.flush(ctx, pending)
	r.logger.Info("recorder stopped", "flushed", len(pending))
}

// flush hands the batch to every writer. A failing writer is logged and skipped; the
// others still receive the batch.
func (r *Recorder) flush(ctx context.Context, batch []dex.Event) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
		defer cancel()
	}
	for _, name := range r.names {
		if err := r.writers[name].WriteEvents(ctx, batch); err != nil {
			r.metrics.failed.WithLabelValues(name).Inc()
			r.logger.Error("event write failed", "writer", name, "events", len(batch),
				"from_sequence", batch[0].Sequence, "error", err)
			continue
		}
		r.metrics.written.WithLabelValues(name).Add(float64(len(batch)))
	}
	r.logger.Debug("events flushed", "events", len(batch))
}
