package gostratum

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var ErrorDisconnected = fmt.Errorf("disconnecting")

const writeTimeout = 10 * time.Second

type StratumContext struct {
	parentContext context.Context
	RemoteAddr    string
	Id            int64
	Logger        *zap.Logger
	State         any

	connection    net.Conn
	writeLock     sync.Mutex
	disconnecting atomic.Bool
	onDisconnect  chan *StratumContext
}

func (sc *StratumContext) String() string {
	return fmt.Sprintf("%d/%s", sc.Id, sc.RemoteAddr)
}

func (sc *StratumContext) Connected() bool {
	return !sc.disconnecting.Load()
}

func (sc *StratumContext) Context() context.Context {
	return sc.parentContext
}

func (sc *StratumContext) Reply(response JsonRpcResponse) error {
	if response.Version == "" {
		response.Version = "2.0"
	}
	return sc.writeJson(response)
}

func (sc *StratumContext) Send(event JsonRpcNotify) error {
	if event.Version == "" {
		event.Version = "2.0"
	}
	return sc.writeJson(event)
}

func (sc *StratumContext) ReplyError(id any, code int, message string) error {
	return sc.Reply(JsonRpcResponse{
		Id:    id,
		Error: &JsonRpcError{Code: code, Message: message},
	})
}

func (sc *StratumContext) writeJson(payload any) error {
	if !sc.Connected() {
		return ErrorDisconnected
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed encoding jsonrpc payload")
	}
	encoded = append(encoded, '\n')

	sc.writeLock.Lock()
	defer sc.writeLock.Unlock()
	sc.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := sc.connection.Write(encoded); err != nil {
		sc.Disconnect()
		return errors.Wrap(err, "failed writing to socket")
	}
	return nil
}

// Disconnect closes the socket once; the read loop notices and reports the
// disconnect to the client listener.
func (sc *StratumContext) Disconnect() {
	if !sc.disconnecting.CAS(false, true) {
		return
	}
	sc.Logger.Info("disconnecting")
	if sc.connection != nil {
		sc.connection.Close()
	}
}
