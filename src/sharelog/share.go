package sharelog

import (
	"context"
	"time"
)

// Share is one submission result as returned by a pool.
type Share struct {
	Time      time.Time `json:"time"`
	Mapper    int       `json:"mapper"`
	Worker    string    `json:"worker"`
	Pool      string    `json:"pool"`
	Diff      uint64    `json:"diff"`
	LatencyMs uint64    `json:"latency_ms"`
	Accepted  bool      `json:"accepted"`
	Error     string    `json:"error,omitempty"`
}

// Recorder accepts shares without blocking the caller.
type Recorder interface {
	Record(share Share)
}

// Sink persists batches of shares.
type Sink interface {
	Name() string
	Write(ctx context.Context, shares []Share) error
	Prune(ctx context.Context, before time.Time) (int64, error)
	Ping(ctx context.Context) error
}
