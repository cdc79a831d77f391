package splitter

import (
	"fmt"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/onemorebsmith/stratum-proxy/src/sharelog"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"go.uber.org/zap"
)

const (
	ReasonBadGateway    = "Bad gateway"
	ReasonInvalidJobID  = "Invalid job id"
	ReasonResultTimeout = "Result timeout"
	statusOK            = "OK"
)

type submitCtx struct {
	reqID   any
	minerID int64
	worker  string
	created time.Time
}

// Mapper multiplexes the miners of one Storage onto one upstream strategy and
// routes asynchronous share results back to the miner that produced them.
type Mapper struct {
	id        int
	suspended bool
	storage   *Storage
	strategy  upstream.Strategy
	results   map[int64]submitCtx
	opts      Options
	logger    *zap.Logger
}

// NewMapper builds a suspended mapper; the first Add (or an explicit connect
// for the reserved mapper) brings it up.
func NewMapper(id int, opts Options) *Mapper {
	opts = opts.withDefaults()
	m := &Mapper{
		id:        id,
		suspended: true,
		storage:   NewStorage(),
		results:   map[int64]submitCtx{},
		opts:      opts,
		logger:    opts.Logger.Named("mapper").With(zap.Int("mapper", id)),
	}
	m.strategy = opts.Factory(id, m)
	return m
}

func (m *Mapper) ID() int {
	return m.id
}

func (m *Mapper) IsSuspended() bool {
	return m.suspended
}

func (m *Mapper) IsActive() bool {
	return m.storage.IsActive()
}

func (m *Mapper) Storage() *Storage {
	return m.storage
}

// Pending is the number of submissions waiting for a pool result.
func (m *Mapper) Pending() int {
	return len(m.results)
}

func (m *Mapper) Add(miner Miner, req *model.LoginRequest) error {
	if err := m.storage.Add(miner, req); err != nil {
		return err
	}
	miner.SetMapperID(m.id)

	if m.suspended {
		m.connect()
	}
	return nil
}

func (m *Mapper) connect() {
	m.suspended = false
	m.opts.Counters.AddUpstream()
	m.strategy.Connect()
}

func (m *Mapper) Remove(miner Miner) {
	m.storage.Remove(miner)
}

func (m *Mapper) Submit(miner Miner, result *model.JobResult) {
	if !m.storage.IsActive() {
		miner.Reject(result.ID, ReasonBadGateway)
		return
	}
	job := m.storage.Job()
	if !job.MatchesID(result.JobID) {
		miner.Reject(result.ID, ReasonInvalidJobID)
		return
	}

	req := *result
	req.Diff = job.Diff
	seq := m.strategy.Submit(&req)
	if seq < 0 {
		miner.Reject(result.ID, ReasonBadGateway)
		return
	}
	m.results[seq] = submitCtx{
		reqID:   result.ID,
		minerID: miner.ID(),
		worker:  miner.Login(),
		created: m.opts.Now(),
	}
}

// GC suspends the mapper once it has no miners left. The reserved mapper 0 is
// never suspended.
func (m *Mapper) GC() {
	if m.suspended || m.id == 0 || m.storage.IsUsed() {
		return
	}
	m.suspend()
}

func (m *Mapper) suspend() {
	m.suspended = true
	m.storage.SetActive(false)
	m.storage.Reset()
	m.strategy.Stop()
	m.opts.Counters.RemoveUpstream()

	m.logger.Info(fmt.Sprintf("#%03d suspended, no miners left", m.id))
}

// Expire drops submissions that waited longer than the result timeout and
// tells the miner, if it is still around.
func (m *Mapper) Expire(now time.Time) {
	for seq, ctx := range m.results {
		if now.Sub(ctx.created) < m.opts.ResultTimeout {
			continue
		}
		delete(m.results, seq)
		m.opts.Counters.Expire(m.id)
		if miner, exists := m.storage.Miner(ctx.minerID); exists {
			miner.Reject(ctx.reqID, ReasonResultTimeout)
		}
	}
}

func (m *Mapper) OnActive(info upstream.ConnInfo) {
	m.storage.SetActive(true)

	m.logger.Info(fmt.Sprintf("#%03d use pool %s %s", m.id, info.Host, info.IP))
}

func (m *Mapper) OnJob(info upstream.ConnInfo, job *model.Job) {
	if m.opts.Verbose {
		m.logger.Info(fmt.Sprintf("#%03d new job from %s diff %d", m.id, info.Host, job.Diff))
	}
	m.storage.SetJob(job)
}

func (m *Mapper) OnPause(strategy upstream.Strategy) {
	m.storage.SetActive(false)

	if !m.suspended {
		m.logger.Error(fmt.Sprintf("#%03d no active pools, stop", m.id))
	}
}

func (m *Mapper) OnResultAccepted(info upstream.ConnInfo, seq int64, diff uint64, ms uint64, err error) {
	if err != nil {
		m.opts.Counters.Reject(m.id, diff, ms, err.Error())
	} else {
		m.opts.Counters.Accept(m.id, diff, ms)
	}

	ctx, exists := m.results[seq]
	if !exists {
		return
	}
	delete(m.results, seq)
	m.record(info, ctx, diff, ms, err)

	miner, exists := m.storage.Miner(ctx.minerID)
	if !exists {
		return
	}
	if err != nil {
		miner.Reject(ctx.reqID, err.Error())
	} else {
		miner.Success(ctx.reqID, statusOK)
	}
}

func (m *Mapper) record(info upstream.ConnInfo, ctx submitCtx, diff, ms uint64, err error) {
	if m.opts.Recorder == nil {
		return
	}
	share := sharelog.Share{
		Time:      m.opts.Now(),
		Mapper:    m.id,
		Worker:    ctx.worker,
		Pool:      info.Host,
		Diff:      diff,
		LatencyMs: ms,
		Accepted:  err == nil,
	}
	if err != nil {
		share.Error = err.Error()
	}
	m.opts.Recorder.Record(share)
}
