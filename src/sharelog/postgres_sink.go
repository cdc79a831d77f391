package sharelog

import (
	"context"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/postgres"
)

// PostgresSink writes shares into the shares table.
type PostgresSink struct{}

func NewPostgresSink(ctx context.Context, connString string) (*PostgresSink, error) {
	postgres.ConfigurePostgres(connString)
	if err := postgres.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &PostgresSink{}, nil
}

func (ps *PostgresSink) Name() string {
	return "postgres"
}

func (ps *PostgresSink) Write(ctx context.Context, shares []Share) error {
	rows := make([]postgres.ShareRow, 0, len(shares))
	for _, s := range shares {
		rows = append(rows, postgres.ShareRow{
			Timestamp: s.Time,
			Mapper:    s.Mapper,
			Worker:    s.Worker,
			Pool:      s.Pool,
			Diff:      s.Diff,
			LatencyMs: s.LatencyMs,
			Accepted:  s.Accepted,
			Error:     s.Error,
		})
	}
	return postgres.PutShares(ctx, rows)
}

func (ps *PostgresSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	return postgres.PruneShares(ctx, before)
}

func (ps *PostgresSink) Ping(ctx context.Context) error {
	return postgres.Ping(ctx)
}
