package splitter

import (
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	ReasonInvalidLogin    = "Invalid login"
	ReasonAlreadyLoggedIn = "Already logged in"
	ReasonProxyFull       = "Proxy is full"
	ReasonUnauthenticated = "Unauthenticated"
)

// Splitter assigns miners to mappers, filling existing mappers before it grows
// a new one.
type Splitter struct {
	opts    Options
	mappers []*Mapper
	logger  *zap.Logger
}

type MapperStats struct {
	ID        int  `json:"id"`
	Suspended bool `json:"suspended"`
	Active    bool `json:"active"`
	Miners    int  `json:"miners"`
	Pending   int  `json:"pending"`
}

func NewSplitter(opts Options) *Splitter {
	opts = opts.withDefaults()
	return &Splitter{
		opts:   opts,
		logger: opts.Logger.Named("splitter"),
	}
}

// Connect brings up the reserved mapper 0.
func (s *Splitter) Connect() {
	s.newMapper().connect()
}

func (s *Splitter) newMapper() *Mapper {
	m := NewMapper(len(s.mappers), s.opts)
	s.mappers = append(s.mappers, m)
	return m
}

func (s *Splitter) Login(miner Miner, req *model.LoginRequest) {
	err := s.login(miner, req)
	if err == nil {
		return
	}
	s.logger.Info("login rejected", zap.Int64("miner", miner.ID()), zap.String("login", req.Login), zap.Error(err))
	miner.Reject(req.ID, rejectReason(err))
}

func (s *Splitter) login(miner Miner, req *model.LoginRequest) error {
	// reuse running mappers first, then wake up a suspended one
	for _, suspended := range []bool{false, true} {
		for _, m := range s.mappers {
			if m.IsSuspended() != suspended {
				continue
			}
			err := m.Add(miner, req)
			if !errors.Is(err, ErrStorageFull) {
				return err
			}
		}
	}

	if s.opts.MaxMappers > 0 && len(s.mappers) >= s.opts.MaxMappers {
		return ErrStorageFull
	}
	return s.newMapper().Add(miner, req)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidLogin):
		return ReasonInvalidLogin
	case errors.Is(err, ErrDuplicateMiner):
		return ReasonAlreadyLoggedIn
	}
	return ReasonProxyFull
}

func (s *Splitter) mapper(miner Miner) *Mapper {
	id := miner.MapperID()
	if id < 0 || id >= len(s.mappers) {
		return nil
	}
	return s.mappers[id]
}

func (s *Splitter) Remove(miner Miner) {
	if m := s.mapper(miner); m != nil {
		m.Remove(miner)
	}
}

func (s *Splitter) Submit(miner Miner, result *model.JobResult) {
	m := s.mapper(miner)
	if m == nil {
		miner.Reject(result.ID, ReasonUnauthenticated)
		return
	}
	m.Submit(miner, result)
}

// GC suspends idle mappers and expires stale submissions. It runs once per tick.
func (s *Splitter) GC() {
	for _, m := range s.mappers {
		if m.id != 0 {
			m.GC()
		}
	}
	now := s.opts.Now()
	for _, m := range s.mappers {
		m.Expire(now)
	}
}

// Stop suspends every mapper, the reserved one included. Used on shutdown.
func (s *Splitter) Stop() {
	for _, m := range s.mappers {
		if !m.suspended {
			m.suspend()
		}
	}
}

// Upstreams counts mappers that are not suspended.
func (s *Splitter) Upstreams() int {
	count := 0
	for _, m := range s.mappers {
		if !m.IsSuspended() {
			count++
		}
	}
	return count
}

func (s *Splitter) Mappers() []MapperStats {
	out := make([]MapperStats, 0, len(s.mappers))
	for _, m := range s.mappers {
		out = append(out, MapperStats{
			ID:        m.id,
			Suspended: m.suspended,
			Active:    m.IsActive(),
			Miners:    m.storage.Count(),
			Pending:   m.Pending(),
		})
	}
	return out
}
