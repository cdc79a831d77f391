package upstream

import (
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"go.uber.org/atomic"
)

// Executor runs fn on the owner's event loop. Network goroutines never call a
// Listener directly.
type Executor func(fn func())

// Inline runs fn on the calling goroutine.
func Inline(fn func()) { fn() }

// ConnInfo identifies the pool connection an event came from.
type ConnInfo struct {
	ID   int
	Host string
	IP   string
}

// Listener receives strategy events. Every method is invoked through the
// configured Executor, or synchronously from Connect/Stop/Submit.
type Listener interface {
	OnActive(info ConnInfo)
	OnJob(info ConnInfo, job *model.Job)
	OnPause(strategy Strategy)
	OnResultAccepted(info ConnInfo, seq int64, diff uint64, ms uint64, err error)
}

// Strategy owns one or more candidate pool connections for a mapper.
type Strategy interface {
	Connect()
	Stop()
	// Submit forwards a share and returns the sequence number its result will
	// be reported under, or -1 when no pool is usable.
	Submit(result *model.JobResult) int64
	IsActive() bool
}

type Factory func(id int, listener Listener) Strategy

// NewFactory picks a SinglePoolStrategy for one pool and a FailoverStrategy
// when several are configured.
func NewFactory(cfg Config) Factory {
	cfg = cfg.withDefaults()
	return func(id int, listener Listener) Strategy {
		logger := cfg.Logger.Named("upstream").With(zapMapper(id))
		if len(cfg.Pools) > 1 {
			return NewFailoverStrategy(cfg, listener, logger)
		}
		return NewSinglePoolStrategy(cfg, listener, logger)
	}
}

// sequence hands out submission ids unique within one strategy.
type sequence struct {
	next atomic.Int64
}

func (s *sequence) Next() int64 {
	return s.next.Inc()
}

// clientListener is implemented by strategies to receive client events.
type clientListener interface {
	onClose(client *Client, failures int)
	onJobReceived(client *Client, job *model.Job)
	onLoginSuccess(client *Client)
	onResultAccepted(client *Client, seq int64, diff uint64, ms uint64, err error)
}
