package sharelog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func StartPruner(ctx context.Context, delay, retention time.Duration, logger *zap.Logger, sinks []Sink) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	logger = logger.Named("pruner")
	for {
		select {
		case <-ticker.C:
			PruneShares(ctx, time.Now().Add(-retention), logger, sinks)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func PruneShares(ctx context.Context, before time.Time, logger *zap.Logger, sinks []Sink) {
	for _, sink := range sinks {
		removed, err := sink.Prune(ctx, before)
		if err != nil {
			logger.Error(errors.Wrapf(err, "failed pruning %s", sink.Name()).Error())
			continue
		}
		if removed > 0 {
			logger.Info("pruned shares", zap.String("sink", sink.Name()), zap.Int64("removed", removed))
		}
	}
}
