package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NicolasHaas/gorelay/pkg/auth"
	"github.com/NicolasHaas/gorelay/pkg/protocol"
)

var (
	ErrShuttingDown  = errors.New("server: shutting down")
	ErrNameBusy      = errors.New("server: name busy")
	ErrNotSubscribed = errors.New("server: not subscribed")
)

// Notices broadcast by the registry.
const (
	noticeJoined   = "%s joined the chat"
	noticeLeft     = "%s left the chat"
	noticeKicked   = "User %s was removed from the chat by an administrator"
	noticeShutdown = "Server is shutting down"
)

// Member is a registry entry's delivery endpoint.
// Implementations must not call back into the Registry. Send wraps transport
// failures in protocol.ErrConnectionLost.
type Member interface {
	Send(text string) error
	Close() error
}

type entry struct {
	name   string
	member Member
}

// Registry is the table of authenticated, connected sessions keyed by display name.
//
// Every exported method takes the same mutex, so registry operations are
// atomic with respect to each other. Deliveries happen while the lock is held
// and iterate a snapshot of the entries.
type Registry struct {
	mu      sync.Mutex
	entries []entry // join order
	closed  bool
	done    chan struct{}
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Subscribe registers m as name. The ack line is delivered to m before the
// join notice is broadcast to everyone. Fails with auth.ErrNameAlreadyConnected
// if name is taken and ErrShuttingDown after Shutdown.
func (r *Registry) Subscribe(m Member, name, ack string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShuttingDown
	}
	if r.indexByNameLocked(name) >= 0 {
		return auth.ErrNameAlreadyConnected
	}
	if r.indexByMemberLocked(m) >= 0 {
		return fmt.Errorf("server: subscribe %q: member already registered", name)
	}
	if ack != "" {
		if err := m.Send(ack); err != nil {
			return fmt.Errorf("server: subscribe %q: %w", name, err)
		}
	}
	r.entries = append(r.entries, entry{name: name, member: m})
	r.logger.Info("user joined", "user", name, "online", len(r.entries))
	r.broadcastLocked(fmt.Sprintf(noticeJoined, name))
	return nil
}

// Unsubscribe removes m and announces its departure. It reports whether m
// was registered; removing an absent member does nothing.
func (r *Registry) Unsubscribe(m Member) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByMemberLocked(m)
	if i < 0 {
		return false
	}
	name := r.entries[i].name
	r.removeLocked(i)
	r.logger.Info("user left", "user", name, "online", len(r.entries))
	r.broadcastLocked(fmt.Sprintf(noticeLeft, name))
	return true
}

// IsNameBusy reports whether name is currently registered.
func (r *Registry) IsNameBusy(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexByNameLocked(name) >= 0
}

// Broadcast delivers text to every registered member.
func (r *Registry) Broadcast(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(text)
}

// DeliverDirect sends text to the member registered as name.
// It reports false, without error, when no such member exists.
func (r *Registry) DeliverDirect(name, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByNameLocked(name)
	if i < 0 {
		return false
	}
	r.sendLocked(r.entries[i], text)
	return true
}

// Kick removes name, closes its transport and announces the removal.
// It reports false, broadcasting nothing, when name is not registered.
func (r *Registry) Kick(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByNameLocked(name)
	if i < 0 {
		return false
	}
	target := r.entries[i]
	r.removeLocked(i)
	if err := target.member.Close(); err != nil {
		r.logger.Debug("close kicked member", "user", name, "err", err)
	}
	r.logger.Info("user kicked", "user", name, "online", len(r.entries))
	r.broadcastLocked(fmt.Sprintf(noticeKicked, name))
	return true
}

// Rename re-keys m to newName, keeping its position. Fails with ErrNameBusy
// if another member holds newName and ErrNotSubscribed if m is absent.
func (r *Registry) Rename(m Member, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexByMemberLocked(m)
	if i < 0 {
		return ErrNotSubscribed
	}
	if j := r.indexByNameLocked(newName); j >= 0 && j != i {
		return ErrNameBusy
	}
	r.logger.Info("user renamed", "from", r.entries[i].name, "to", newName)
	r.entries[i].name = newName
	return nil
}

// Shutdown announces the shutdown, closes every member and empties the table.
// Later subscriptions fail with ErrShuttingDown. Calling it again is a no-op.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.broadcastLocked(noticeShutdown)
	for _, e := range r.entries {
		_ = e.member.Close()
	}
	r.logger.Info("registry shut down", "disconnected", len(r.entries))
	r.entries = nil
	close(r.done)
}

// Done is closed once Shutdown has run.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Names returns the registered names in join order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of registered members.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) broadcastLocked(text string) {
	snapshot := make([]entry, len(r.entries))
	copy(snapshot, r.entries)
	for _, e := range snapshot {
		r.sendLocked(e, text)
	}
}

// sendLocked delivers one line. A member whose transport is lost is closed;
// its session notices and unsubscribes itself. Any other error only drops
// this line for this member.
func (r *Registry) sendLocked(e entry, text string) {
	err := e.member.Send(text)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrConnectionLost):
		r.logger.Warn("delivery failed", "user", e.name, "err", err)
		_ = e.member.Close()
	default:
		r.logger.Warn("line dropped", "user", e.name, "err", err)
	}
}

func (r *Registry) removeLocked(i int) {
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
}

func (r *Registry) indexByNameLocked(name string) int {
	for i, e := range r.entries {
		if e.name == name {
			return i
		}
	}
	return -1
}

func (r *Registry) indexByMemberLocked(m Member) int {
	for i, e := range r.entries {
		if e.member == m {
			return i
		}
	}
	return -1
}
