package gostratum

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// MaxLineSize bounds one request line from a miner.
const MaxLineSize = 16 * 1024

// clientIds is shared by every listener in the process so a connection id
// identifies one miner no matter which address it connected to.
var clientIds atomic.Int64

type StratumHandler func(ctx *StratumContext, event JsonRpcEvent) error
type StratumHandlerMap map[StratumMethod]StratumHandler

type StratumClientListener interface {
	OnConnect(ctx *StratumContext)
	OnDisconnect(ctx *StratumContext)
}

type StateGenerator func() any

type StratumListenerConfig struct {
	Logger         *zap.Logger
	HandlerMap     StratumHandlerMap
	ClientListener StratumClientListener
	StateGenerator StateGenerator
	Port           string
	ReadTimeout    time.Duration
}

type StratumListener struct {
	StratumListenerConfig
	listener     net.Listener
	shuttingDown atomic.Bool
}

func NewListener(cfg StratumListenerConfig) *StratumListener {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Minute
	}
	return &StratumListener{
		StratumListenerConfig: cfg,
	}
}

// Bind opens the listening socket without accepting connections yet.
func (s *StratumListener) Bind() error {
	lc := net.ListenConfig{}
	l, err := lc.Listen(context.Background(), "tcp", s.Port)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.Port)
	}
	s.listener = l
	return nil
}

func (s *StratumListener) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *StratumListener) Listen(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the accept loop until ctx is cancelled.
func (s *StratumListener) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("listener is not bound")
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	s.Logger.Info("listening for stratum connections", zap.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.shuttingDown.Load() {
				return nil
			}
			s.Logger.Error("failed to accept incoming connection", zap.Error(err))
			continue
		}
		go s.newClient(ctx, conn)
	}
}

func (s *StratumListener) Close() {
	if s.shuttingDown.CAS(false, true) && s.listener != nil {
		s.listener.Close()
	}
}

func (s *StratumListener) newClient(ctx context.Context, conn net.Conn) {
	addr := conn.RemoteAddr().String()
	if idx := strings.LastIndex(addr, ":"); idx > 0 {
		addr = addr[:idx]
	}
	id := clientIds.Inc()
	var state any
	if s.StateGenerator != nil {
		state = s.StateGenerator()
	}
	clientContext := &StratumContext{
		parentContext: ctx,
		RemoteAddr:    addr,
		Id:            id,
		Logger:        s.Logger.With(zap.String("client", addr), zap.Int64("client_id", id)),
		State:         state,
		connection:    conn,
	}
	if s.ClientListener != nil {
		s.ClientListener.OnConnect(clientContext)
	}
	s.readLoop(clientContext)
	clientContext.Disconnect()
	if s.ClientListener != nil {
		s.ClientListener.OnDisconnect(clientContext)
	}
}

func (s *StratumListener) readLoop(ctx *StratumContext) {
	scanner := bufio.NewScanner(ctx.connection)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	for {
		ctx.connection.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && ctx.Connected() {
				ctx.Logger.Info("read failed", zap.Error(err))
			}
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := s.handleLine(ctx, line); err != nil {
			ctx.Logger.Warn("closing client after bad request", zap.Error(err))
			return
		}
	}
}

func (s *StratumListener) handleLine(ctx *StratumContext, line []byte) error {
	event, err := UnmarshalEvent(line)
	if err != nil {
		return err
	}
	handler, exists := s.HandlerMap[event.Method]
	if !exists {
		ctx.Logger.Debug("unsupported method", zap.String("method", string(event.Method)))
		return ctx.ReplyError(event.Id, -1, "Unsupported method")
	}
	if err := handler(ctx, event); err != nil {
		ctx.Logger.Warn("error handling "+string(event.Method), zap.Error(err))
	}
	return nil
}
