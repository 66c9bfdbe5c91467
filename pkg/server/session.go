package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/command"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

// TimestampLayout formats the time prefix of chat lines (dd-MM-yyyy HH:mm).
const TimestampLayout = "02-01-2006 15:04"

// Replies sent only to the session that caused them.
const (
	replyReminder      = "Authenticate with '/auth login password' or register with '/register login password displayName' before chatting"
	replyAlreadyAuthed = "You are already authenticated"
	replyBanned        = "You have been banned by an administrator"
	replyNickChanged   = "Display name changed to %s"
	replyNickFailed    = "Could not change display name"
	replyActiveUsers   = "Active users: %s"
	replyThrottled     = "You are sending messages too fast"
	replyNotAvailable  = "The server is shutting down"
	replyTooLong       = "Message too long"
)

// State is a session's position in its protocol lifetime.
type State int

const (
	StateConnecting State = iota
	StateUnauthenticated
	StateAuthenticated
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SessionDeps are the shared collaborators of every session.
type SessionDeps struct {
	Registry *Registry
	Provider auth.Provider
	Metrics  *Metrics
	Logger   *slog.Logger
	Now      func() time.Time

	// MessageRate is the sustained chat lines per second allowed per session.
	// Zero disables flood control.
	MessageRate  float64
	MessageBurst int
}

// Session is one connected client across its whole lifetime.
// It implements Member so the registry can deliver to it.
type Session struct {
	id      string
	conn    protocol.Conn
	deps    SessionDeps
	logger  *slog.Logger
	limiter *rate.Limiter

	mu    sync.Mutex
	name  string
	state State
}

// NewSession wraps conn. The session does nothing until Serve is called.
func NewSession(conn protocol.Conn, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	id := uuid.NewString()
	s := &Session{
		id:     id,
		conn:   conn,
		deps:   deps,
		logger: deps.Logger.With("conn", id, "remote", conn.RemoteAddr()),
		state:  StateConnecting,
	}
	if deps.MessageRate > 0 {
		burst := deps.MessageBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(deps.MessageRate), burst)
	}
	return s
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// Name returns the current display name, or "" before authentication.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// Send writes one line to the client.
func (s *Session) Send(text string) error {
	return s.conn.WriteLine(text)
}

// Close closes the client transport. Serve notices and cleans up.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Serve runs the session until the client leaves, the transport fails, the
// session is kicked or the server shuts down. It always unsubscribes and
// closes the transport before returning.
func (s *Session) Serve(ctx context.Context) {
	defer s.cleanup()
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	s.setState(StateUnauthenticated)
	s.logger.Debug("session started")

	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("client closed connection")
			} else {
				s.logger.Debug("read failed", "err", err)
			}
			return
		}

		var keep bool
		if s.State() == StateAuthenticated {
			keep = s.handleAuthenticated(ctx, line)
		} else {
			keep = s.handleUnauthenticated(ctx, line)
		}
		if !keep {
			return
		}
	}
}

func (s *Session) cleanup() {
	s.setState(StateDisconnected)
	s.deps.Registry.Unsubscribe(s)
	_ = s.conn.Close()
	s.logger.Debug("session ended", "user", s.Name())
}

// reply sends a line to this session. It reports false when the transport
// is lost; a line the transport refuses (too large) is only logged.
func (s *Session) reply(text string) bool {
	if err := s.Send(text); err != nil {
		s.logger.Debug("reply failed", "err", err)
		return !errors.Is(err, protocol.ErrConnectionLost)
	}
	return true
}

func (s *Session) handleUnauthenticated(ctx context.Context, line string) bool {
	switch c := command.Parse(line).(type) {
	case command.Exit:
		s.reply(protocol.ReplyExitOK)
		return false

	case command.Auth:
		name, err := s.deps.Provider.Authenticate(ctx, c.Login, c.Password)
		if err != nil {
			s.observeAuth(err)
			s.logAuthFailure("authentication failed", c.Login, err)
			return s.reply(auth.Message(err))
		}
		keep, err := s.join(name, protocol.ReplyAuthOK)
		s.observeAuth(err)
		return keep

	case command.Register:
		name, err := s.deps.Provider.Register(ctx, c.Login, c.Password, c.DisplayName)
		if s.deps.Metrics != nil {
			s.deps.Metrics.Registrations.WithLabelValues(auth.Reason(err)).Inc()
		}
		if err != nil {
			s.logAuthFailure("registration failed", c.Login, err)
			return s.reply(auth.Message(err))
		}
		keep, _ := s.join(name, protocol.ReplyRegOK)
		return keep

	case command.Malformed:
		if c.Word == protocol.CmdAuth || c.Word == protocol.CmdRegister {
			return s.reply(c.Reason)
		}
		return s.reply(replyReminder)

	default:
		return s.reply(replyReminder)
	}
}

func (s *Session) observeAuth(err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.AuthAttempts.WithLabelValues(auth.Reason(err)).Inc()
	}
}

func (s *Session) logAuthFailure(msg, login string, err error) {
	if auth.Reason(err) == "backend" {
		s.logger.Error(msg, "login", login, "err", err)
		return
	}
	s.logger.Info(msg, "login", login, "reason", auth.Reason(err))
}

// join registers the session under name. ackToken is /authok or /regok.
// It reports whether the session should keep reading, and the subscribe error.
func (s *Session) join(name, ackToken string) (bool, error) {
	err := s.deps.Registry.Subscribe(s, name, ackToken+" "+name)
	switch {
	case err == nil:
		s.mu.Lock()
		s.name = name
		s.state = StateAuthenticated
		s.mu.Unlock()
		s.logger = s.logger.With("user", name)
		return true, nil
	case errors.Is(err, auth.ErrNameAlreadyConnected):
		s.logger.Info("name already connected", "user", name)
		return s.reply(auth.Message(err)), err
	case errors.Is(err, ErrShuttingDown):
		s.reply(replyNotAvailable)
		return false, err
	default:
		s.logger.Debug("subscribe failed", "user", name, "err", err)
		return false, err
	}
}

func (s *Session) handleAuthenticated(ctx context.Context, line string) bool {
	name := s.Name()

	switch c := command.Parse(line).(type) {
	case command.PlainMessage:
		out := s.format(name, c.Text)
		if len(out) > protocol.MaxFrameSize {
			return s.reply(replyTooLong)
		}
		if !s.allow() {
			return s.reply(replyThrottled)
		}
		s.deps.Registry.Broadcast(out)
		s.countChat("broadcast")

	case command.DirectMessage:
		out := s.format(name, c.Body)
		if len(out) > protocol.MaxFrameSize {
			return s.reply(replyTooLong)
		}
		if !s.allow() {
			return s.reply(replyThrottled)
		}
		// Unknown recipients are dropped without telling the sender.
		if s.deps.Registry.DeliverDirect(c.Target, out) {
			s.countChat("direct")
		}

	case command.Kick:
		if !s.elevated(ctx, name) {
			return true
		}
		if s.deps.Registry.Kick(c.Target) && s.deps.Metrics != nil {
			s.deps.Metrics.KickCount.Inc()
		}
		s.logger.Info("kick", "target", c.Target)

	case command.Ban:
		if !s.elevated(ctx, name) {
			return true
		}
		s.deps.Registry.DeliverDirect(c.Target, replyBanned)
		s.deps.Registry.Kick(c.Target)
		if err := s.deps.Provider.Ban(ctx, c.Target); err != nil {
			s.logger.Error("ban failed", "target", c.Target, "err", err)
			return true
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.BanCount.Inc()
		}
		s.logger.Info("ban", "target", c.Target)

	case command.Shutdown:
		if !s.elevated(ctx, name) {
			return true
		}
		s.logger.Info("shutdown requested")
		s.deps.Registry.Shutdown()
		return false

	case command.ActiveList:
		return s.reply(fmt.Sprintf(replyActiveUsers, strings.Join(s.deps.Registry.Names(), ", ")))

	case command.ChangeNick:
		return s.changeNick(ctx, name, c.NewName)

	case command.Exit:
		s.reply(protocol.ReplyExitOK)
		return false

	case command.Auth, command.Register:
		return s.reply(replyAlreadyAuthed)

	case command.Malformed:
		if isPrivilegedWord(c.Word) && !s.elevated(ctx, name) {
			return true
		}
		return s.reply(c.Reason)
	}
	return true
}

// changeNick renames in the registry first so that the name check and the
// re-key are one step, then persists. A persistence failure undoes the rename.
func (s *Session) changeNick(ctx context.Context, oldName, newName string) bool {
	if err := s.deps.Registry.Rename(s, newName); err != nil {
		if errors.Is(err, ErrNameBusy) {
			return s.reply(auth.MsgDisplayNameTaken)
		}
		return false
	}
	if err := s.deps.Provider.ChangeNick(ctx, oldName, newName); err != nil {
		if rbErr := s.deps.Registry.Rename(s, oldName); rbErr != nil {
			s.logger.Error("rename rollback failed", "from", newName, "to", oldName, "err", rbErr)
		}
		if errors.Is(err, auth.ErrDisplayNameTaken) {
			return s.reply(auth.MsgDisplayNameTaken)
		}
		s.logger.Error("change nick failed", "to", newName, "err", err)
		return s.reply(replyNickFailed)
	}
	s.setName(newName)
	s.logger = s.logger.With("user", newName)
	return s.reply(fmt.Sprintf(replyNickChanged, newName))
}

// elevated looks the privilege up fresh on every call.
func (s *Session) elevated(ctx context.Context, name string) bool {
	ok, err := s.deps.Provider.PrivilegeElevation(ctx, name)
	if err != nil {
		s.logger.Error("privilege check failed", "err", err)
		return false
	}
	if !ok {
		s.logger.Debug("permission denied")
	}
	return ok
}

func (s *Session) allow() bool {
	if s.limiter == nil || s.limiter.Allow() {
		return true
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Throttled.Inc()
	}
	return false
}

func (s *Session) countChat(kind string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ChatMessages.WithLabelValues(kind).Inc()
	}
}

func (s *Session) format(name, text string) string {
	return s.deps.Now().Format(TimestampLayout) + " " + name + ": " + text
}

func isPrivilegedWord(word string) bool {
	switch word {
	case protocol.CmdKick, protocol.CmdBan, protocol.CmdShutdown:
		return true
	}
	return false
}
