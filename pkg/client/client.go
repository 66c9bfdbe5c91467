// Package client implements a line-oriented gorelay client.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// LineHandler is a callback for incoming server lines.
type LineHandler func(line string)

// Client manages one connection to a gorelay server.
type Client struct {
	conn protocol.Conn
	mu   sync.Mutex
	done chan struct{}

	handler LineHandler
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return New(protocol.NewStreamConn(conn, 0, 0)), nil
}

// New wraps an established transport.
func New(conn protocol.Conn) *Client {
	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}
}

// SetLineHandler sets the callback used by StartReceiving.
func (c *Client) SetLineHandler(handler LineHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Send sends one line to the server.
func (c *Client) Send(line string) error {
	if err := c.conn.WriteLine(line); err != nil {
		return fmt.Errorf("client: send: %w", err)
	}
	return nil
}

// ReadLine blocks for the next server line. Do not mix with StartReceiving.
func (c *Client) ReadLine() (string, error) {
	return c.conn.ReadLine()
}

// Authenticate sends /auth and waits for the reply. It returns the display
// name on /authok and the server's message as an error otherwise.
func (c *Client) Authenticate(login, password string) (string, error) {
	return c.request(protocol.CmdAuth+" "+login+" "+password, protocol.ReplyAuthOK)
}

// Register sends /register and waits for the reply.
func (c *Client) Register(login, password, displayName string) (string, error) {
	return c.request(protocol.CmdRegister+" "+login+" "+password+" "+displayName, protocol.ReplyRegOK)
}

func (c *Client) request(line, okToken string) (string, error) {
	if err := c.Send(line); err != nil {
		return "", err
	}
	reply, err := c.ReadLine()
	if err != nil {
		return "", fmt.Errorf("client: read reply: %w", err)
	}
	if name, ok := strings.CutPrefix(reply, okToken+" "); ok {
		return name, nil
	}
	return "", fmt.Errorf("client: %s", reply)
}

// StartReceiving starts a goroutine that reads incoming lines and dispatches
// them to the line handler. Done is closed when the connection ends or the
// server confirms /exit.
func (c *Client) StartReceiving() {
	go func() {
		defer close(c.done)
		for {
			line, err := c.conn.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					slog.Debug("server closed connection")
				} else {
					slog.Debug("read error", "err", err)
				}
				return
			}
			c.mu.Lock()
			handler := c.handler
			c.mu.Unlock()
			if handler != nil {
				handler(line)
			}
			if line == protocol.ReplyExitOK {
				return
			}
		}
	}()
}

// Run relays lines from in to the server and prints server lines to out
// until the server confirms /exit, the connection drops, in is exhausted or
// ctx is cancelled.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	var outMu sync.Mutex
	c.SetLineHandler(func(line string) {
		outMu.Lock()
		defer outMu.Unlock()
		_, _ = fmt.Fprintln(out, line)
	})
	c.StartReceiving()

	sendErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 4096), protocol.MaxFrameSize)
		for scanner.Scan() {
			if err := c.Send(scanner.Text()); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		_ = c.Close()
		<-c.done
		return ctx.Err()
	case <-c.done:
		return c.Close()
	case err := <-sendErr:
		if err != nil {
			_ = c.Close()
			return err
		}
		// Input finished: leave politely and wait for the server to let go.
		if err := c.Send(protocol.CmdExit); err != nil {
			_ = c.Close()
			return nil
		}
		<-c.done
		return c.Close()
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when receiving stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
