package upstream

import (
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"go.uber.org/zap"
)

// FailoverStrategy keeps the first pool as primary and walks down the list
// when a pool fails Retries times in a row. The primary keeps retrying in the
// background and takes over again once it logs in.
type FailoverStrategy struct {
	active   int
	retries  int
	clients  []*Client
	listener Listener
}

func NewFailoverStrategy(cfg Config, listener Listener, logger *zap.Logger) *FailoverStrategy {
	cfg = cfg.withDefaults()
	s := &FailoverStrategy{
		active:   -1,
		retries:  cfg.Retries,
		listener: listener,
	}
	seq := &sequence{}
	for i, pool := range cfg.Pools {
		s.clients = append(s.clients, newClient(i, pool, cfg, seq, s, logger))
	}
	return s
}

func (s *FailoverStrategy) Connect() {
	s.clients[0].Connect()
}

func (s *FailoverStrategy) Stop() {
	for _, c := range s.clients {
		c.Disconnect()
	}
	s.active = -1
	s.listener.OnPause(s)
}

func (s *FailoverStrategy) Submit(result *model.JobResult) int64 {
	if !s.IsActive() {
		return -1
	}
	return s.clients[s.active].Submit(result)
}

func (s *FailoverStrategy) IsActive() bool {
	return s.active >= 0
}

func (s *FailoverStrategy) onClose(client *Client, failures int) {
	if s.active == client.ID() {
		s.active = -1
		s.listener.OnPause(s)
	}
	// The last pool hands over to the primary; Connect is a no-op on a
	// client that is still retrying.
	if failures == s.retries {
		s.clients[(client.ID()+1)%len(s.clients)].Connect()
	}
}

func (s *FailoverStrategy) onJobReceived(client *Client, job *model.Job) {
	if s.active == client.ID() {
		s.listener.OnJob(client.Info(), job)
	}
}

func (s *FailoverStrategy) onLoginSuccess(client *Client) {
	active := s.active
	if client.ID() == 0 || !s.IsActive() {
		active = client.ID()
	}
	for i := 1; i < len(s.clients); i++ {
		if i != active {
			s.clients[i].Disconnect()
		}
	}
	if active >= 0 && active != s.active {
		s.active = active
		s.listener.OnActive(client.Info())
	}
}

func (s *FailoverStrategy) onResultAccepted(client *Client, seq int64, diff uint64, ms uint64, err error) {
	s.listener.OnResultAccepted(client.Info(), seq, diff, ms, err)
}
