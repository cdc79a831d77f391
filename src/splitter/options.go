package splitter

import (
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/counters"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"go.uber.org/zap"
)

const DefaultResultTimeout = 2 * time.Minute

type Options struct {
	Factory       upstream.Factory
	Counters      *counters.Counters
	Recorder      sharelog.Recorder
	Logger        *zap.Logger
	ResultTimeout time.Duration
	MaxMappers    int
	Verbose       bool
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Counters == nil {
		o.Counters = counters.NewCounters(o.Logger, false)
	}
	if o.ResultTimeout <= 0 {
		o.ResultTimeout = DefaultResultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
