package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/counters"
	"github.com/onemorebsmith/stratum-proxy/src/gostratum"
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/onemorebsmith/stratum-proxy/src/splitter"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const eventBacklog = 4096

var ErrNoListeners = errors.New("no stratum listener could be bound")

// Proxy owns the miner set and the splitter. Every mutation of either happens
// on the goroutine running Run; everything else hands work over with Post.
type Proxy struct {
	cfg          ProxyConfig
	logger       *zap.Logger
	counters     *counters.Counters
	splitter     *splitter.Splitter
	listener     *clientListener
	servers      []*gostratum.StratumListener
	miners       map[int64]*Miner
	events       chan func()
	done         chan struct{}
	tickInterval time.Duration
}

// NewProxy wires the splitter to the given upstream factory. A nil factory
// builds the default one from cfg, delivering pool events on the proxy loop.
func NewProxy(cfg ProxyConfig, logger *zap.Logger, c *counters.Counters, factory upstream.Factory, recorder sharelog.Recorder) *Proxy {
	p := &Proxy{
		cfg:          cfg,
		logger:       logger.Named("proxy"),
		counters:     c,
		miners:       map[int64]*Miner{},
		events:       make(chan func(), eventBacklog),
		done:         make(chan struct{}),
		tickInterval: TickInterval,
	}
	if factory == nil {
		ucfg := cfg.upstreamConfig()
		ucfg.Executor = p.Post
		ucfg.Logger = logger
		factory = upstream.NewFactory(ucfg)
	}
	p.splitter = splitter.NewSplitter(splitter.Options{
		Factory:       factory,
		Counters:      c,
		Recorder:      recorder,
		Logger:        logger,
		ResultTimeout: cfg.ResultTimeout,
		MaxMappers:    cfg.MaxMappers,
		Verbose:       cfg.Verbose,
	})
	p.listener = newClientListener(p, logger.Named("miners"))
	return p
}

// Post queues fn for the event loop. Once the loop has exited it is dropped.
func (p *Proxy) Post(fn func()) {
	select {
	case p.events <- fn:
	case <-p.done:
	}
}

// Connect brings up the reserved mapper and binds every configured address.
// Addresses that fail to bind are logged and skipped.
func (p *Proxy) Connect(ctx context.Context) error {
	p.splitter.Connect()

	for _, addr := range p.cfg.Bind {
		server := gostratum.NewListener(gostratum.StratumListenerConfig{
			Logger:         p.logger.Named("stratum"),
			HandlerMap:     p.listener.handlers(),
			ClientListener: p.listener,
			Port:           addr,
		})
		if err := server.Bind(); err != nil {
			p.logger.Error("failed to bind stratum listener", zap.String("addr", addr), zap.Error(err))
			continue
		}
		p.servers = append(p.servers, server)
		go func() {
			if err := server.Serve(ctx); err != nil {
				p.logger.Error("stratum listener stopped", zap.Error(err))
			}
		}()
	}
	if len(p.cfg.Bind) > 0 && len(p.servers) == 0 {
		return ErrNoListeners
	}
	return nil
}

// Run executes posted events and the periodic tick until ctx is cancelled.
func (p *Proxy) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()
	defer p.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.events:
			fn()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Proxy) shutdown() {
	for _, server := range p.servers {
		server.Close()
	}
	p.splitter.Stop()
	close(p.done)
	p.logger.Info("proxy stopped")
}

// Stats returns a snapshot of the mappers taken on the event loop.
func (p *Proxy) Stats(ctx context.Context) ([]splitter.MapperStats, error) {
	out := make(chan []splitter.MapperStats, 1)
	p.Post(func() { out <- p.splitter.Mappers() })
	select {
	case stats := <-out:
		return stats, nil
	case <-p.done:
		return nil, errors.New("proxy stopped")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Proxy) tick() {
	p.splitter.GC()

	t := p.counters.Tick()
	p.logger.Info(fmt.Sprintf("%.2f KH/s, shares: %d/%d +%d, upstreams: %d, miners: %d (max %d) +%d/-%d",
		p.counters.Hashrate(time.Minute),
		p.counters.Accepted(), p.counters.Rejected(), t.Accepted,
		p.counters.Upstreams(),
		p.counters.Miners(), p.counters.MinersMax(), t.Added, t.Removed))
	if p.cfg.Verbose {
		p.printHashrate()
	}

	p.counters.Reset()
}

func (p *Proxy) printHashrate() {
	speeds := make([]any, 0, len(counters.HashrateWindows))
	for _, window := range counters.HashrateWindows {
		speeds = append(speeds, p.counters.Hashrate(window))
	}
	p.logger.Info(fmt.Sprintf("speed 1m %.2f 10m %.2f 1h %.2f 12h %.2f 24h %.2f KH/s", speeds...))
}

func (p *Proxy) onNewMinerAccepted(miner *Miner) {
	p.miners[miner.ID()] = miner
	p.counters.AddMiner()

	if p.cfg.Verbose {
		p.logger.Info(fmt.Sprintf("new miner %s", miner.ctx.String()))
	}
}

func (p *Proxy) onMinerLogin(miner *Miner, req *model.LoginRequest) {
	if _, exists := p.miners[miner.ID()]; !exists {
		return
	}
	if miner.state != minerWaitLogin {
		miner.Reject(req.ID, splitter.ReasonAlreadyLoggedIn)
		return
	}

	miner.beginLogin(req)
	p.splitter.Login(miner, req)
	if miner.MapperID() < 0 {
		miner.Disconnect()
		return
	}
	if p.cfg.Verbose {
		p.logger.Info(fmt.Sprintf("#%03d login %s from %s, fixed byte %d",
			miner.MapperID(), req.Login, miner.ctx.RemoteAddr, miner.FixedByte()))
	}
}

func (p *Proxy) onMinerSubmit(miner *Miner, result *model.JobResult) {
	if _, exists := p.miners[miner.ID()]; !exists {
		return
	}
	p.splitter.Submit(miner, result)
}

func (p *Proxy) onMinerClose(miner *Miner) {
	if _, exists := p.miners[miner.ID()]; !exists {
		return
	}
	delete(p.miners, miner.ID())
	p.counters.RemoveMiner()
	p.splitter.Remove(miner)

	if p.cfg.Verbose {
		p.logger.Info(fmt.Sprintf("miner %s gone after %s", miner.ctx.String(), time.Since(miner.connectTime).Round(time.Second)))
	}
}
