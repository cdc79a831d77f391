package upstream

import (
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"go.uber.org/zap"
)

type SinglePoolStrategy struct {
	active   bool
	client   *Client
	listener Listener
}

func NewSinglePoolStrategy(cfg Config, listener Listener, logger *zap.Logger) *SinglePoolStrategy {
	cfg = cfg.withDefaults()
	s := &SinglePoolStrategy{listener: listener}
	s.client = newClient(0, cfg.Pools[0], cfg, &sequence{}, s, logger)
	return s
}

func (s *SinglePoolStrategy) Connect() {
	s.client.Connect()
}

func (s *SinglePoolStrategy) Stop() {
	s.client.Disconnect()
	s.active = false
	s.listener.OnPause(s)
}

func (s *SinglePoolStrategy) Submit(result *model.JobResult) int64 {
	if !s.active {
		return -1
	}
	return s.client.Submit(result)
}

func (s *SinglePoolStrategy) IsActive() bool {
	return s.active
}

func (s *SinglePoolStrategy) onClose(client *Client, failures int) {
	if !s.active {
		return
	}
	s.active = false
	s.listener.OnPause(s)
}

func (s *SinglePoolStrategy) onJobReceived(client *Client, job *model.Job) {
	s.listener.OnJob(client.Info(), job)
}

func (s *SinglePoolStrategy) onLoginSuccess(client *Client) {
	s.active = true
	s.listener.OnActive(client.Info())
}

func (s *SinglePoolStrategy) onResultAccepted(client *Client, seq int64, diff uint64, ms uint64, err error) {
	s.listener.OnResultAccepted(client.Info(), seq, diff, ms, err)
}
