package sharelog

import (
	"context"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	journalQueueSize = 4096
	journalBatchSize = 256
	flushInterval    = time.Second
)

// Journal fans recorded shares out to its sinks from a goroutine of its own,
// so the event loop never waits on redis or postgres. Shares are dropped when
// the queue is full.
type Journal struct {
	logger  *zap.Logger
	sinks   []Sink
	queue   chan Share
	dropped atomic.Uint64
}

func NewJournal(logger *zap.Logger, sinks ...Sink) *Journal {
	return &Journal{
		logger: logger.Named("sharelog"),
		sinks:  sinks,
		queue:  make(chan Share, journalQueueSize),
	}
}

func (j *Journal) Sinks() []Sink {
	return j.sinks
}

func (j *Journal) Record(share Share) {
	select {
	case j.queue <- share:
	default:
		if j.dropped.Inc()%1000 == 1 {
			j.logger.Warn("share journal queue full, dropping shares", zap.Uint64("dropped", j.dropped.Load()))
		}
	}
}

func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Run drains the queue until ctx is cancelled, flushing whatever is left.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	batch := make([]Share, 0, journalBatchSize)
	for {
		select {
		case share := <-j.queue:
			batch = append(batch, share)
			if len(batch) >= journalBatchSize {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ctx.Done():
			for {
				select {
				case share := <-j.queue:
					batch = append(batch, share)
				default:
					if len(batch) > 0 {
						j.flush(context.Background(), batch)
					}
					return
				}
			}
		}
	}
}

func (j *Journal) flush(ctx context.Context, batch []Share) {
	for _, sink := range j.sinks {
		if err := sink.Write(ctx, batch); err != nil {
			j.logger.Error("failed writing shares", zap.String("sink", sink.Name()), zap.Int("count", len(batch)), zap.Error(err))
		}
	}
}
