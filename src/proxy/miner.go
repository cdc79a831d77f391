package proxy

import (
	"time"

	"github.com/google/uuid"
	"github.com/onemorebsmith/stratum-proxy/src/gostratum"
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"go.uber.org/zap"
)

type minerState int

const (
	minerWaitLogin minerState = iota
	minerWaitJob
	minerReady
)

type jobParams struct {
	Blob   string `json:"blob"`
	JobID  string `json:"job_id"`
	Target string `json:"target"`
	ID     string `json:"id"`
	Height uint64 `json:"height,omitempty"`
	Algo   string `json:"algo,omitempty"`
}

type loginReply struct {
	ID     string     `json:"id"`
	Job    *jobParams `json:"job"`
	Status string     `json:"status"`
}

type statusReply struct {
	Status string `json:"status"`
}

// Miner is one downstream connection. Apart from the fields set at connect
// time it is only touched from the proxy event loop.
type Miner struct {
	ctx         *gostratum.StratumContext
	sessionID   string
	connectTime time.Time
	logger      *zap.Logger

	state     minerState
	loginID   any
	login     string
	agent     string
	mapperID  int
	fixedByte int
}

func NewMiner(ctx *gostratum.StratumContext) *Miner {
	return &Miner{
		ctx:         ctx,
		sessionID:   uuid.NewString(),
		connectTime: time.Now(),
		logger:      ctx.Logger,
		state:       minerWaitLogin,
		mapperID:    -1,
		fixedByte:   -1,
	}
}

// GetMiner returns the miner attached to a stratum connection.
func GetMiner(ctx *gostratum.StratumContext) *Miner {
	miner, _ := ctx.State.(*Miner)
	return miner
}

func (m *Miner) ID() int64 {
	return m.ctx.Id
}

func (m *Miner) Login() string {
	return m.login
}

func (m *Miner) MapperID() int {
	return m.mapperID
}

func (m *Miner) SetMapperID(id int) {
	m.mapperID = id
}

func (m *Miner) FixedByte() int {
	return m.fixedByte
}

func (m *Miner) SetFixedByte(b int) {
	m.fixedByte = b
}

func (m *Miner) SessionID() string {
	return m.sessionID
}

func (m *Miner) beginLogin(req *model.LoginRequest) {
	m.state = minerWaitJob
	m.loginID = req.ID
	m.login = req.Login
	m.agent = req.Agent
	m.logger = m.logger.With(zap.String("worker", req.Login))
}

// SetJob answers the pending login with the first job, later jobs are pushed
// as notifications.
func (m *Miner) SetJob(job *model.Job) {
	params := &jobParams{
		Blob:   job.Blob,
		JobID:  job.ID,
		Target: job.Target,
		ID:     m.sessionID,
		Height: job.Height,
		Algo:   job.Algo,
	}

	var err error
	switch m.state {
	case minerWaitLogin:
		return
	case minerWaitJob:
		m.state = minerReady
		err = m.ctx.Reply(gostratum.JsonRpcResponse{
			Id:     m.loginID,
			Result: loginReply{ID: m.sessionID, Job: params, Status: "OK"},
		})
	default:
		err = m.ctx.Send(gostratum.JsonRpcNotify{
			Method: gostratum.StratumMethodJob,
			Params: params,
		})
	}
	if err != nil {
		m.logger.Debug("failed sending job", zap.String("job", job.ID), zap.Error(err))
	}
}

func (m *Miner) Reject(id any, reason string) {
	if err := m.ctx.ReplyError(id, -1, reason); err != nil {
		m.logger.Debug("failed sending error", zap.String("reason", reason), zap.Error(err))
	}
}

func (m *Miner) Success(id any, status string) {
	if err := m.ctx.Reply(gostratum.JsonRpcResponse{Id: id, Result: statusReply{Status: status}}); err != nil {
		m.logger.Debug("failed sending result", zap.Error(err))
	}
}

func (m *Miner) Disconnect() {
	m.ctx.Disconnect()
}
