package counters

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "stratum_proxy"

type promMetrics struct {
	shares    *prometheus.CounterVec
	shareDiff *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	expired   *prometheus.CounterVec
	upstreams prometheus.Gauge
	miners    prometheus.Gauge
	hashrate  *prometheus.GaugeVec
}

func newPromMetrics() *promMetrics {
	return &promMetrics{
		shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shares",
			Help:      "Share results returned by upstream pools",
		}, []string{"mapper", "result"}),
		shareDiff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_diff",
			Help:      "Sum of difficulty of share results returned by upstream pools",
		}, []string{"mapper", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "share_latency_ms",
			Help:      "Round trip time of share submissions",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"mapper"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_submissions",
			Help:      "Submissions dropped after waiting too long for a result",
		}, []string{"mapper"}),
		upstreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstreams",
			Help:      "Active upstream connections",
		}),
		miners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "miners",
			Help:      "Connected miners",
		}),
		hashrate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hashrate_khs",
			Help:      "Accepted hashrate in KH/s by window",
		}, []string{"window"}),
	}
}

func (pm *promMetrics) observe(id int, result string, diff, ms uint64) {
	mapper := fmt.Sprintf("%d", id)
	pm.shares.WithLabelValues(mapper, result).Inc()
	pm.shareDiff.WithLabelValues(mapper, result).Add(float64(diff))
	pm.latency.WithLabelValues(mapper).Observe(float64(ms))
}

func (pm *promMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pm.shares, pm.shareDiff, pm.latency, pm.expired, pm.upstreams, pm.miners, pm.hashrate,
	}
}

// Register adds the counters' collectors to reg.
func (c *Counters) Register(reg prometheus.Registerer) error {
	for _, col := range c.metrics.collectors() {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// StartPromServer serves /metrics for the counters on port.
func StartPromServer(logger *zap.Logger, port string, c *Counters) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	if err := c.Register(reg); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("hosting prom stats on " + port + "/metrics")
	go func() {
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("prom server stopped", zap.Error(err))
		}
	}()
	return nil
}
