package proxy

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/onemorebsmith/stratum-proxy/src/common"
	"github.com/onemorebsmith/stratum-proxy/src/counters"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ListenAndServe runs the proxy until the process receives SIGINT or SIGTERM.
func ListenAndServe(cfg ProxyConfig) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}

	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}
	logger := common.ConfigureZap(level, cfg.Log)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stats := counters.NewCounters(logger, cfg.Verbose)
	if cfg.PromPort != "" {
		if err := counters.StartPromServer(logger, cfg.PromPort, stats); err != nil {
			return err
		}
	}

	sinks, err := configureSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var recorder sharelog.Recorder
	if len(sinks) > 0 {
		journal := sharelog.NewJournal(logger, sinks...)
		recorder = journal
		go journal.Run(ctx)
		if cfg.ShareRetention > 0 {
			go sharelog.StartPruner(ctx, defaultPruneGap, cfg.ShareRetention, logger, sinks)
		}
	}

	proxy := NewProxy(cfg, logger, stats, nil, recorder)
	if cfg.HealthCheckPort != "" {
		logger.Info("enabling health check on port " + cfg.HealthCheckPort)
		beginReadyzHandler(cfg.HealthCheckPort, newHealthMux(proxy, stats, sinks, cfg.PostgresConfig != "", logger), logger)
	}

	if err := proxy.Connect(ctx); err != nil {
		return err
	}
	proxy.Run(ctx)
	return nil
}

func configureSinks(ctx context.Context, cfg ProxyConfig, logger *zap.Logger) ([]sharelog.Sink, error) {
	var sinks []sharelog.Sink
	if cfg.RedisConfig != "" {
		rd, err := sharelog.ConfigureRedis(cfg.RedisConfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed connecting to redis")
		}
		sinks = append(sinks, sharelog.NewRedisSink(rd))
		logger.Info("recording shares to redis", zap.String("addr", cfg.RedisConfig))
	}
	if cfg.PostgresConfig != "" {
		pg, err := sharelog.NewPostgresSink(ctx, cfg.PostgresConfig)
		if err != nil {
			return nil, errors.Wrap(err, "failed connecting to postgres")
		}
		sinks = append(sinks, pg)
		logger.Info("recording shares to postgres")
	}
	return sinks, nil
}
