package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients may be served from anywhere; sessions still authenticate.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsConn carries one chat line per WebSocket text message.
type wsConn struct {
	conn         *websocket.Conn
	remote       string
	idleTimeout  time.Duration
	writeTimeout time.Duration

	mu        sync.Mutex // protects writes to conn
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn, remote string, idleTimeout, writeTimeout time.Duration) *wsConn {
	conn.SetReadLimit(protocol.MaxFrameSize)
	return &wsConn{
		conn:         conn,
		remote:       remote,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		if c.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		}
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("%w: %w", protocol.ErrConnectionLost, err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !utf8.Valid(data) {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid UTF-8"),
				time.Now().Add(time.Second))
			return "", fmt.Errorf("%w: %w", protocol.ErrConnectionLost, protocol.ErrInvalidUTF8)
		}
		return string(data), nil
	}
}

func (c *wsConn) WriteLine(text string) error {
	if len(text) > protocol.MaxFrameSize {
		return protocol.ErrFrameTooLarge
	}
	if !utf8.ValidString(text) {
		return protocol.ErrInvalidUTF8
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrConnectionLost, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl may run alongside a blocked WriteLine, so Close never
		// waits on mu.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(100*time.Millisecond))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string { return c.remote }

var _ protocol.Conn = (*wsConn)(nil)

// handleWebSocket upgrades GET /ws and serves the connection as a session.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	s.serveConn(newWSConn(conn, r.RemoteAddr, s.cfg.IdleTimeout, s.cfg.WriteTimeout))
}

// startWebSocket listens on Config.WebSocketAddr. Empty address disables it.
func (s *Server) startWebSocket() error {
	if s.cfg.WebSocketAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.WebSocketAddr)
	if err != nil {
		return fmt.Errorf("server: listen websocket: %w", err)
	}
	s.wsAddr = ln.Addr()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.wsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("websocket listening", "addr", ln.Addr().String())
		if err := s.wsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server error", "err", err)
		}
	}()
	return nil
}
