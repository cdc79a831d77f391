package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const createSharesTable = `CREATE TABLE IF NOT EXISTS shares (
	id         BIGSERIAL PRIMARY KEY,
	timestamp  TIMESTAMPTZ NOT NULL,
	mapper     INTEGER NOT NULL,
	worker     TEXT NOT NULL,
	pool       TEXT NOT NULL,
	diff       BIGINT NOT NULL,
	latency_ms BIGINT NOT NULL,
	accepted   BOOLEAN NOT NULL,
	error      TEXT
);
CREATE INDEX IF NOT EXISTS shares_timestamp_idx ON shares (timestamp);`

type ShareRow struct {
	Timestamp time.Time
	Mapper    int
	Worker    string
	Pool      string
	Diff      uint64
	LatencyMs uint64
	Accepted  bool
	Error     string
}

func EnsureSchema(ctx context.Context) error {
	_, err := DoExec(ctx, createSharesTable)
	return errors.Wrap(err, "failed creating shares table")
}

func PutShares(ctx context.Context, rows []ShareRow) error {
	if len(rows) == 0 {
		return nil
	}
	return DoQuery(ctx, func(conn *pgx.Conn) error {
		batch := &pgx.Batch{}
		for _, r := range rows {
			var shareErr *string
			if r.Error != "" {
				e := r.Error
				shareErr = &e
			}
			batch.Queue(`INSERT into shares(timestamp, mapper, worker, pool, diff, latency_ms, accepted, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				r.Timestamp.UTC(), r.Mapper, r.Worker, r.Pool, int64(r.Diff), int64(r.LatencyMs), r.Accepted, shareErr)
		}
		results := conn.SendBatch(ctx, batch)
		defer results.Close()
		for range rows {
			if _, err := results.Exec(); err != nil {
				return errors.Wrap(err, "failed to record shares")
			}
		}
		return nil
	})
}

func PruneShares(ctx context.Context, before time.Time) (int64, error) {
	removed, err := DoExec(ctx, `DELETE FROM shares WHERE timestamp < $1`, before.UTC())
	return removed, errors.Wrap(err, "failed pruning shares")
}

// GetDiffByWorker sums accepted difficulty per worker since the given time.
func GetDiffByWorker(ctx context.Context, since time.Time) (map[string]uint64, error) {
	out := map[string]uint64{}
	return out, DoQuery(ctx, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx,
			`SELECT worker, SUM(diff) FROM shares WHERE accepted AND timestamp >= $1 GROUP BY 1`, since.UTC())
		if err != nil {
			return errors.Wrapf(err, "failed to fetch shares from database")
		}
		defer res.Close()
		for res.Next() {
			worker := ""
			total := int64(0)
			if err := res.Scan(&worker, &total); err != nil {
				return errors.Wrap(err, "failed unmarshalling data")
			}
			out[worker] = uint64(total)
		}
		return res.Err()
	})
}
