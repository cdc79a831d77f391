package counters

import (
	"fmt"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Counters aggregates share and connection statistics for the whole process.
// Every mapper reports into the same instance, so all operations are safe for
// concurrent use.
type Counters struct {
	logger  *zap.Logger
	verbose bool
	now     func() time.Time

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	expired   atomic.Uint64
	upstreams atomic.Int64
	miners    atomic.Int64
	minersMax atomic.Int64

	tickAccepted atomic.Uint64
	tickAdded    atomic.Uint64
	tickRemoved  atomic.Uint64

	hashes  *hashRing
	metrics *promMetrics
}

// Tick holds the counters accumulated since the last Reset.
type Tick struct {
	Accepted uint64
	Added    uint64
	Removed  uint64
}

func NewCounters(logger *zap.Logger, verbose bool) *Counters {
	return &Counters{
		logger:  logger.Named("counters"),
		verbose: verbose,
		now:     time.Now,
		hashes:  newHashRing(),
		metrics: newPromMetrics(),
	}
}

func (c *Counters) AddUpstream() {
	c.metrics.upstreams.Set(float64(c.upstreams.Inc()))
}

func (c *Counters) RemoveUpstream() {
	c.metrics.upstreams.Set(float64(c.upstreams.Dec()))
}

func (c *Counters) Upstreams() int64 {
	return c.upstreams.Load()
}

func (c *Counters) AddMiner() {
	n := c.miners.Inc()
	c.tickAdded.Inc()
	for {
		max := c.minersMax.Load()
		if n <= max || c.minersMax.CAS(max, n) {
			break
		}
	}
	c.metrics.miners.Set(float64(n))
}

func (c *Counters) RemoveMiner() {
	n := c.miners.Dec()
	c.tickRemoved.Inc()
	c.metrics.miners.Set(float64(n))
}

func (c *Counters) Miners() int64 {
	return c.miners.Load()
}

func (c *Counters) MinersMax() int64 {
	return c.minersMax.Load()
}

// Accept records a share the pool accepted on behalf of mapper id.
func (c *Counters) Accept(id int, diff, ms uint64) {
	total := c.accepted.Inc()
	c.tickAccepted.Inc()
	c.hashes.add(c.now(), diff)
	c.metrics.observe(id, "accepted", diff, ms)

	if c.verbose {
		c.logger.Info(fmt.Sprintf("#%03d accepted (%d/%d) diff %d (%d ms)", id, total, c.rejected.Load(), diff, ms))
	}
}

// Reject records a share the pool refused on behalf of mapper id.
func (c *Counters) Reject(id int, diff, ms uint64, reason string) {
	total := c.rejected.Inc()
	c.metrics.observe(id, "rejected", diff, ms)

	c.logger.Info(fmt.Sprintf("#%03d rejected (%d/%d) diff %d \"%s\" (%d ms)", id, c.accepted.Load(), total, diff, reason, ms))
}

// Expire records a submission whose result never arrived.
func (c *Counters) Expire(id int) {
	c.expired.Inc()
	c.metrics.expired.WithLabelValues(fmt.Sprintf("%d", id)).Inc()
}

func (c *Counters) Accepted() uint64 { return c.accepted.Load() }
func (c *Counters) Rejected() uint64 { return c.rejected.Load() }
func (c *Counters) Expired() uint64  { return c.expired.Load() }

// Hashrate returns the accepted hashrate in KH/s over the trailing window.
func (c *Counters) Hashrate(window time.Duration) float64 {
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		return 0
	}
	return float64(c.hashes.sum(c.now(), seconds)) / float64(seconds) / 1000.0
}

func (c *Counters) Tick() Tick {
	return Tick{
		Accepted: c.tickAccepted.Load(),
		Added:    c.tickAdded.Load(),
		Removed:  c.tickRemoved.Load(),
	}
}

// Reset clears the per tick counters. Totals are kept.
func (c *Counters) Reset() {
	c.tickAccepted.Store(0)
	c.tickAdded.Store(0)
	c.tickRemoved.Store(0)
	for _, w := range HashrateWindows {
		c.metrics.hashrate.WithLabelValues(w.String()).Set(c.Hashrate(w))
	}
}
