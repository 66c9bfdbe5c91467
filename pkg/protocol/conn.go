package protocol

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrConnectionLost wraps every transport read or write failure.
// It is fatal to the session that owns the connection and to nobody else.
var ErrConnectionLost = errors.New("protocol: connection lost")

// Conn is a bidirectional line transport: one frame in, one frame out per
// logical line. Implementations must allow WriteLine to be called from
// several goroutines while another goroutine blocks in ReadLine.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(text string) error
	Close() error
	RemoteAddr() string
}

// StreamConn carries frames over a net.Conn.
//
// Broadcast senders and the owning session may write to the same connection
// simultaneously, so writes are serialized with a mutex. Reads are only ever
// performed by the owning session.
type StreamConn struct {
	conn         net.Conn
	mu           sync.Mutex // protects writes to conn
	idleTimeout  time.Duration
	writeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// NewStreamConn wraps a net.Conn. A zero timeout disables that deadline.
func NewStreamConn(conn net.Conn, idleTimeout, writeTimeout time.Duration) *StreamConn {
	return &StreamConn{
		conn:         conn,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

// ReadLine blocks until the next frame arrives or the idle timeout expires.
func (c *StreamConn) ReadLine() (string, error) {
	if c.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
	text, err := ReadFrame(c.conn)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return text, nil
}

// WriteLine sends one frame.
func (c *StreamConn) WriteLine(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := WriteFrame(c.conn, text); err != nil {
		if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrInvalidUTF8) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// Close closes the underlying connection. Safe to call more than once.
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Compile-time check: *StreamConn implements Conn.
var _ Conn = (*StreamConn)(nil)
