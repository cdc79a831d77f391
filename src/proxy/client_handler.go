package proxy

import (
	"encoding/hex"
	"encoding/json"

	"github.com/onemorebsmith/stratum-proxy/src/gostratum"
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	reasonInvalidParams = "Invalid params"
	statusKeepalived    = "KEEPALIVED"
	nonceSize           = 8
	resultSize          = 64
)

type loginParams struct {
	Login string `json:"login"`
	Pass  string `json:"pass"`
	Agent string `json:"agent"`
	RigID string `json:"rigid"`
}

type submitParams struct {
	ID     string `json:"id"`
	JobID  string `json:"job_id"`
	Nonce  string `json:"nonce"`
	Result string `json:"result"`
}

// clientListener turns socket events into closures on the proxy loop. It runs
// on the connection goroutines and never touches proxy state directly.
type clientListener struct {
	proxy  *Proxy
	logger *zap.Logger
}

func newClientListener(proxy *Proxy, logger *zap.Logger) *clientListener {
	return &clientListener{
		proxy:  proxy,
		logger: logger,
	}
}

func (c *clientListener) OnConnect(ctx *gostratum.StratumContext) {
	miner := NewMiner(ctx)
	ctx.State = miner
	c.proxy.Post(func() { c.proxy.onNewMinerAccepted(miner) })
}

func (c *clientListener) OnDisconnect(ctx *gostratum.StratumContext) {
	miner := GetMiner(ctx)
	if miner == nil {
		return
	}
	c.proxy.Post(func() { c.proxy.onMinerClose(miner) })
}

func (c *clientListener) handlers() gostratum.StratumHandlerMap {
	return gostratum.StratumHandlerMap{
		gostratum.StratumMethodLogin:     c.handleLogin,
		gostratum.StratumMethodSubmit:    c.handleSubmit,
		gostratum.StratumMethodKeepalive: c.handleKeepalive,
	}
}

func (c *clientListener) handleLogin(ctx *gostratum.StratumContext, event gostratum.JsonRpcEvent) error {
	params := loginParams{}
	if err := json.Unmarshal(event.Params, &params); err != nil {
		ctx.ReplyError(event.Id, -1, reasonInvalidParams)
		return errors.Wrap(err, "malformed login params")
	}
	miner := GetMiner(ctx)
	req := &model.LoginRequest{
		ID:       event.Id,
		Login:    params.Login,
		Password: params.Pass,
		Agent:    params.Agent,
		RigID:    params.RigID,
	}
	c.proxy.Post(func() { c.proxy.onMinerLogin(miner, req) })
	return nil
}

func (c *clientListener) handleSubmit(ctx *gostratum.StratumContext, event gostratum.JsonRpcEvent) error {
	params := submitParams{}
	if err := json.Unmarshal(event.Params, &params); err != nil {
		ctx.ReplyError(event.Id, -1, reasonInvalidParams)
		return errors.Wrap(err, "malformed submit params")
	}
	if !validSubmit(params) {
		return ctx.ReplyError(event.Id, -1, reasonInvalidParams)
	}
	miner := GetMiner(ctx)
	result := &model.JobResult{
		ID:     event.Id,
		JobID:  params.JobID,
		Nonce:  params.Nonce,
		Result: params.Result,
	}
	c.proxy.Post(func() { c.proxy.onMinerSubmit(miner, result) })
	return nil
}

func validSubmit(params submitParams) bool {
	if params.JobID == "" || len(params.Nonce) != nonceSize || len(params.Result) != resultSize {
		return false
	}
	if _, err := hex.DecodeString(params.Nonce); err != nil {
		return false
	}
	_, err := hex.DecodeString(params.Result)
	return err == nil
}

func (c *clientListener) handleKeepalive(ctx *gostratum.StratumContext, event gostratum.JsonRpcEvent) error {
	return ctx.Reply(gostratum.JsonRpcResponse{
		Id:     event.Id,
		Result: statusReply{Status: statusKeepalived},
	})
}
