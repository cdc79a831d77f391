package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type pingSink struct {
	err error
}

func (ps *pingSink) Name() string { return "ping" }

func (ps *pingSink) Write(ctx context.Context, shares []sharelog.Share) error { return nil }

func (ps *pingSink) Prune(ctx context.Context, before time.Time) (int64, error) { return 0, nil }

func (ps *pingSink) Ping(ctx context.Context) error { return ps.err }

func runProxy(t *testing.T, p *Proxy) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestReadyz(t *testing.T) {
	p, upstreams, c := newTestProxy(ProxyConfig{})
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	runProxy(t, p)
	sink := &pingSink{}
	mux := newHealthMux(p, c, []sharelog.Sink{sink}, false, zap.NewNop())

	check := func(expected int) {
		t.Helper()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != expected {
			t.Fatalf("expected %d, got %d: %s", expected, rec.Code, rec.Body.String())
		}
	}

	check(http.StatusServiceUnavailable)

	job := testJob(t, "1")
	listener := upstreams.strategies[0].listener
	p.Post(func() {
		listener.OnActive(testPool)
		listener.OnJob(testPool, job)
	})
	check(http.StatusOK)

	sink.err = errors.New("connection refused")
	check(http.StatusInternalServerError)
}

func TestStatus(t *testing.T) {
	p, _, c := newTestProxy(ProxyConfig{})
	if err := p.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	runProxy(t, p)
	c.AddMiner()
	mux := newHealthMux(p, c, nil, false, zap.NewNop())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	resp := statusResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Miners != 1 || resp.Upstreams != 1 || len(resp.Mappers) != 1 || len(resp.Hashrate) != 5 {
		t.Fatalf("unexpected status %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workers", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("workers endpoint served without postgres: %d", rec.Code)
	}
}
