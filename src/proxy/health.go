package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/counters"
	"github.com/onemorebsmith/stratum-proxy/src/postgres"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/onemorebsmith/stratum-proxy/src/splitter"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	statusTimeout = 5 * time.Second
	workersWindow = time.Hour
	recentWindow  = 10 * time.Minute
	recentLimit   = 500
)

type sharesResponse struct {
	Total  int64            `json:"total"`
	Recent []sharelog.Share `json:"recent"`
}

type statusResponse struct {
	Accepted  uint64                 `json:"accepted"`
	Rejected  uint64                 `json:"rejected"`
	Expired   uint64                 `json:"expired"`
	Upstreams int64                  `json:"upstreams"`
	Miners    int64                  `json:"miners"`
	MinersMax int64                  `json:"miners_max"`
	Hashrate  map[string]float64     `json:"hashrate"`
	Mappers   []splitter.MapperStats `json:"mappers"`
}

type healthServer struct {
	proxy    *Proxy
	counters *counters.Counters
	sinks    []sharelog.Sink
	logger   *zap.Logger
}

func newHealthMux(proxy *Proxy, c *counters.Counters, sinks []sharelog.Sink, withPostgres bool, logger *zap.Logger) *http.ServeMux {
	hs := &healthServer{
		proxy:    proxy,
		counters: c,
		sinks:    sinks,
		logger:   logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", hs.readyz)
	mux.HandleFunc("/status", hs.status)
	if withPostgres {
		mux.HandleFunc("/workers", hs.workers)
	}
	for _, sink := range sinks {
		if rs, ok := sink.(*sharelog.RedisSink); ok {
			mux.HandleFunc("/shares", func(w http.ResponseWriter, r *http.Request) {
				hs.shares(w, r, rs)
			})
		}
	}
	return mux
}

func beginReadyzHandler(port string, mux *http.ServeMux, logger *zap.Logger) {
	go func() {
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("health check server stopped", zap.Error(err))
		}
	}()
}

func (hs *healthServer) readyz(w http.ResponseWriter, r *http.Request) {
	stats, err := hs.proxy.Stats(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(errors.Wrap(err, "failed reading proxy state").Error()))
		return
	}
	active := false
	for _, m := range stats {
		active = active || m.Active
	}
	if !active {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("no active upstream"))
		return
	}
	for _, sink := range hs.sinks {
		if err := sink.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrapf(err, "failed pinging %s", sink.Name()).Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (hs *healthServer) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()
	stats, err := hs.proxy.Stats(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := statusResponse{
		Accepted:  hs.counters.Accepted(),
		Rejected:  hs.counters.Rejected(),
		Expired:   hs.counters.Expired(),
		Upstreams: hs.counters.Upstreams(),
		Miners:    hs.counters.Miners(),
		MinersMax: hs.counters.MinersMax(),
		Hashrate:  map[string]float64{},
		Mappers:   stats,
	}
	for _, window := range counters.HashrateWindows {
		resp.Hashrate[window.String()] = hs.counters.Hashrate(window)
	}
	writeJSON(w, resp, hs.logger)
}

func (hs *healthServer) workers(w http.ResponseWriter, r *http.Request) {
	diffs, err := postgres.GetDiffByWorker(r.Context(), time.Now().Add(-workersWindow))
	if err != nil {
		http.Error(w, errors.Wrap(err, "failed reading worker shares").Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, diffs, hs.logger)
}

func (hs *healthServer) shares(w http.ResponseWriter, r *http.Request, rs *sharelog.RedisSink) {
	total, err := rs.Count(r.Context())
	if err != nil {
		http.Error(w, errors.Wrap(err, "failed counting shares").Error(), http.StatusInternalServerError)
		return
	}
	recent, err := rs.Recent(r.Context(), time.Now().Add(-recentWindow), recentLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sharesResponse{Total: total, Recent: recent}, hs.logger)
}

func writeJSON(w http.ResponseWriter, payload any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("failed writing response", zap.Error(err))
	}
}
