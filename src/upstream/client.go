package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/gostratum"
	"github.com/onemorebsmith/stratum-proxy/src/model"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("not connected")

func zapMapper(id int) zap.Field {
	return zap.Int("mapper", id)
}

type jobParams struct {
	ID     string `json:"job_id"`
	Blob   string `json:"blob"`
	Target string `json:"target"`
	Height uint64 `json:"height"`
	Algo   string `json:"algo"`
}

type loginResult struct {
	ID     string     `json:"id"`
	Job    *jobParams `json:"job"`
	Status string     `json:"status"`
}

type pendingResult struct {
	diff uint64
	sent time.Time
}

// Client is a single pool connection. Its socket is driven by a goroutine of
// its own; every event is handed to the strategy through the executor, and
// dropped if the session was torn down in the meantime.
type Client struct {
	id         int
	pool       PoolConfig
	agent      string
	retryPause time.Duration
	executor   Executor
	seq        *sequence
	listener   clientListener
	logger     *zap.Logger

	lock    sync.Mutex
	cancel  context.CancelFunc
	conn    net.Conn
	ip      string
	rpcID   string
	results map[int64]pendingResult
}

func newClient(id int, pool PoolConfig, cfg Config, seq *sequence, listener clientListener, logger *zap.Logger) *Client {
	return &Client{
		id:         id,
		pool:       pool,
		agent:      cfg.Agent,
		retryPause: cfg.RetryPause,
		executor:   cfg.Executor,
		seq:        seq,
		listener:   listener,
		logger:     logger.With(zap.String("pool", pool.Address())),
		results:    map[int64]pendingResult{},
	}
}

func (c *Client) ID() int {
	return c.id
}

func (c *Client) Info() ConnInfo {
	c.lock.Lock()
	defer c.lock.Unlock()
	return ConnInfo{ID: c.id, Host: c.pool.Address(), IP: c.ip}
}

// Connect starts the connection loop; it is a no-op while already running.
func (c *Client) Connect() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
}

// Disconnect stops the loop for good; no close event is reported for it.
func (c *Client) Disconnect() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
	if c.conn != nil {
		c.conn.Close()
	}
	c.results = map[int64]pendingResult{}
}

// Submit writes the share and returns its sequence number. A failed write
// tears the session down; the caller learns about it through onClose.
func (c *Client) Submit(result *model.JobResult) int64 {
	seq := c.seq.Next()
	c.lock.Lock()
	rpcID := c.rpcID
	c.results[seq] = pendingResult{diff: result.Diff, sent: time.Now()}
	c.lock.Unlock()

	err := c.send(seq, gostratum.StratumMethodSubmit, map[string]any{
		"id":     rpcID,
		"job_id": result.JobID,
		"nonce":  result.Nonce,
		"result": result.Result,
	})
	if err != nil {
		c.logger.Warn("failed sending share", zap.Int64("seq", seq), zap.Error(err))
	}
	return seq
}

func (c *Client) send(id int64, method gostratum.StratumMethod, params any) error {
	event, err := gostratum.NewEvent(id, method, params)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed encoding request")
	}
	encoded = append(encoded, '\n')

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(dialTimeout))
	if _, err := c.conn.Write(encoded); err != nil {
		c.conn.Close()
		return errors.Wrap(err, "failed writing to pool")
	}
	return nil
}

// post delivers fn on the executor unless the session ended first.
func (c *Client) post(ctx context.Context, fn func()) {
	c.executor(func() {
		if ctx.Err() != nil {
			return
		}
		fn()
	})
}

func (c *Client) run(ctx context.Context) {
	failures := 0
	for {
		err := c.session(ctx, &failures)
		if ctx.Err() != nil {
			return
		}
		failures++
		c.logger.Warn("pool connection lost", zap.Int("failures", failures), zap.Error(err))
		f := failures
		c.post(ctx, func() { c.listener.onClose(c, f) })

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryPause):
		}
	}
}

func (c *Client) session(ctx context.Context, failures *int) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.pool.Address())
	if err != nil {
		return errors.Wrapf(err, "failed connecting to %s", c.pool.Address())
	}

	c.lock.Lock()
	if ctx.Err() != nil {
		c.lock.Unlock()
		conn.Close()
		return ctx.Err()
	}
	c.conn = conn
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		c.ip = addr.IP.String()
	}
	c.lock.Unlock()

	defer func() {
		c.lock.Lock()
		conn.Close()
		if c.conn == conn {
			c.conn = nil
			c.rpcID = ""
			c.results = map[int64]pendingResult{}
		}
		c.lock.Unlock()
	}()

	loginID := c.seq.Next()
	err = c.send(loginID, gostratum.StratumMethodLogin, map[string]any{
		"login": c.pool.User,
		"pass":  c.pool.Password,
		"agent": c.agent,
		"rigid": c.pool.RigID,
	})
	if err != nil {
		return err
	}

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()
	if c.pool.Keepalive {
		go c.keepalive(sessionCtx)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), gostratum.MaxLineSize)
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		if !scanner.Scan() {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := c.handleLine(ctx, loginID, line, failures); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read failed")
	}
	return errors.New("connection closed by pool")
}

func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.lock.Lock()
			rpcID := c.rpcID
			c.lock.Unlock()
			if err := c.send(c.seq.Next(), gostratum.StratumMethodKeepalive, map[string]any{"id": rpcID}); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleLine(ctx context.Context, loginID int64, line []byte, failures *int) error {
	msg, err := gostratum.UnmarshalMessage(line)
	if err != nil {
		return err
	}
	if !msg.IsResponse() {
		if msg.Method == gostratum.StratumMethodJob {
			return c.parseJob(ctx, msg.Params)
		}
		c.logger.Debug("ignoring notification", zap.String("method", string(msg.Method)))
		return nil
	}

	id, ok := responseID(msg.Id)
	if !ok {
		return fmt.Errorf("unexpected response id %v", msg.Id)
	}
	if id == loginID {
		if msg.Error != nil {
			return errors.Wrap(msg.Error, "login failed")
		}
		return c.parseLogin(ctx, msg.Result, failures)
	}
	c.parseResult(ctx, id, msg.Error)
	return nil
}

func responseID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func (c *Client) parseLogin(ctx context.Context, raw json.RawMessage, failures *int) error {
	result := loginResult{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.Wrap(err, "malformed login reply")
	}
	if result.ID == "" {
		return errors.New("login reply has no session id")
	}
	c.lock.Lock()
	c.rpcID = result.ID
	c.lock.Unlock()
	*failures = 0

	c.post(ctx, func() { c.listener.onLoginSuccess(c) })
	if result.Job == nil {
		return nil
	}
	raw, err := json.Marshal(result.Job)
	if err != nil {
		return err
	}
	return c.parseJob(ctx, raw)
}

func (c *Client) parseJob(ctx context.Context, raw json.RawMessage) error {
	params := jobParams{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return errors.Wrap(err, "malformed job")
	}
	job, err := model.NewJob(params.ID, params.Blob, params.Target, params.Height, params.Algo, c.pool.Address())
	if err != nil {
		return errors.Wrap(err, "invalid job")
	}
	c.post(ctx, func() { c.listener.onJobReceived(c, job) })
	return nil
}

func (c *Client) parseResult(ctx context.Context, seq int64, rpcErr *gostratum.JsonRpcError) {
	c.lock.Lock()
	pending, exists := c.results[seq]
	delete(c.results, seq)
	c.lock.Unlock()
	if !exists {
		return
	}

	ms := uint64(time.Since(pending.sent).Milliseconds())
	var err error
	if rpcErr != nil {
		err = rpcErr
	}
	c.post(ctx, func() { c.listener.onResultAccepted(c, seq, pending.diff, ms, err) })
}
