package gostratum

import (
	"bytes"
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MockConnection is an in memory net.Conn that captures everything written to
// it, one entry per line.
type MockConnection struct {
	lock   sync.Mutex
	lines  [][]byte
	closed bool
}

func NewMockContext(ctx context.Context, logger *zap.Logger, state any) (*StratumContext, *MockConnection) {
	mc := &MockConnection{}
	return &StratumContext{
		parentContext: ctx,
		RemoteAddr:    "127.0.0.1",
		Logger:        logger,
		State:         state,
		connection:    mc,
	}, mc
}

func (mc *MockConnection) Read(b []byte) (int, error) {
	return 0, net.ErrClosed
}

func (mc *MockConnection) Write(b []byte) (int, error) {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	if mc.closed {
		return 0, net.ErrClosed
	}
	for _, line := range bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n")) {
		mc.lines = append(mc.lines, append([]byte(nil), line...))
	}
	return len(b), nil
}

// Lines returns the lines written so far.
func (mc *MockConnection) Lines() [][]byte {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	return append([][]byte(nil), mc.lines...)
}

func (mc *MockConnection) Closed() bool {
	mc.lock.Lock()
	defer mc.lock.Unlock()
	return mc.closed
}

func (mc *MockConnection) Close() error {
	mc.lock.Lock()
	mc.closed = true
	mc.lock.Unlock()
	return nil
}

func (mc *MockConnection) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}
}

func (mc *MockConnection) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 55555}
}

func (mc *MockConnection) SetDeadline(t time.Time) error      { return nil }
func (mc *MockConnection) SetReadDeadline(t time.Time) error  { return nil }
func (mc *MockConnection) SetWriteDeadline(t time.Time) error { return nil }
