package app

import (
	"context"
	"errors"
	"sync"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
	"github.com/rs/zerolog/log"
)

// ErrNotSubscribed is returned by Admit when the subscription was dropped while held.
var ErrNotSubscribed = errors.New("not subscribed")

// maxHeld bounds the frames queued for a subscription that is not admitted yet.
const maxHeld = 64

type socketEntry struct {
	Sub      core.Subscriber
	Channels map[string]*subscription
	Cancel   context.CancelFunc
}

// subscription starts held: frames offered to it are queued until Admit sends
// the caller's lead frames followed by the queue.
type subscription struct {
	mu      sync.Mutex
	held    bool
	gone    bool
	pending []core.Frame
}

// offer sends f or queues it while held. queued reports the latter.
func (s *subscription) offer(conn core.SignalConnection, f core.Frame) (queued bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held {
		return false, conn.TrySend(f)
	}
	if s.gone {
		return true, nil
	}
	if len(s.pending) >= maxHeld {
		return true, ErrNotSubscribed
	}
	s.pending = append(s.pending, f)
	return true, nil
}

func (s *subscription) drop() {
	s.mu.Lock()
	s.gone = true
	s.pending = nil
	s.mu.Unlock()
}

type target struct {
	sub   core.Subscriber
	state *subscription
}

// Registry tracks connected sockets and the channels each one is subscribed to.
type Registry struct {
	mu       sync.RWMutex
	sockets  map[core.SocketID]*socketEntry
	channels map[string]map[core.SocketID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sockets:  make(map[core.SocketID]*socketEntry),
		channels: make(map[string]map[core.SocketID]struct{}),
	}
}

func (r *Registry) Bind(sub core.Subscriber, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sockets[sub.SocketID()] = &socketEntry{
		Sub:      sub,
		Channels: make(map[string]*subscription),
		Cancel:   cancel,
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sub.SocketID())).Str("user", string(sub.UserID())).Msg("bound socket")
}

// Unbind forgets the socket and returns the channels it was subscribed to.
func (r *Registry) Unbind(sid core.SocketID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sockets[sid]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.Channels))
	for ch, sub := range e.Channels {
		sub.drop()
		r.dropLocked(sid, ch)
		out = append(out, ch)
	}
	delete(r.sockets, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind socket")
	return out
}

func (r *Registry) Get(sid core.SocketID) (core.Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sockets[sid]; ok {
		return e.Sub, true
	}
	return nil, false
}

// Subscribe adds a held subscription; events reach it only after Admit.
// Subscribing twice keeps the existing subscription. Reports false when the socket is unknown.
func (r *Registry) Subscribe(sid core.SocketID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sockets[sid]
	if !ok {
		return false
	}
	if _, ok := e.Channels[channel]; ok {
		return true
	}
	e.Channels[channel] = &subscription{held: true}
	set, ok := r.channels[channel]
	if !ok {
		set = make(map[core.SocketID]struct{})
		r.channels[channel] = set
	}
	set[sid] = struct{}{}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("channel", channel).Msg("subscribed")
	return true
}

// Unsubscribe reports whether the socket was subscribed.
func (r *Registry) Unsubscribe(sid core.SocketID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sockets[sid]
	if !ok {
		return false
	}
	sub, ok := e.Channels[channel]
	if !ok {
		return false
	}
	sub.drop()
	delete(e.Channels, channel)
	r.dropLocked(sid, channel)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("channel", channel).Msg("unsubscribed")
	return true
}

func (r *Registry) dropLocked(sid core.SocketID, channel string) {
	set := r.channels[channel]
	delete(set, sid)
	if len(set) == 0 {
		delete(r.channels, channel)
	}
}

// Admit sends lead, then everything queued while held, and makes the
// subscription live. Deliveries to it are serialized with Admit, so no event
// overtakes lead.
func (r *Registry) Admit(sid core.SocketID, channel string, lead ...core.Frame) error {
	r.mu.RLock()
	e, ok := r.sockets[sid]
	var sub *subscription
	if ok {
		sub = e.Channels[channel]
	}
	r.mu.RUnlock()
	if sub == nil {
		return ErrNotSubscribed
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.gone {
		return ErrNotSubscribed
	}
	pending := sub.pending
	sub.pending = nil
	sub.held = false
	conn := e.Sub.Signal()
	for _, f := range append(lead[:len(lead):len(lead)], pending...) {
		if err := conn.TrySend(f); err != nil {
			return err
		}
	}
	return nil
}

// IsSubscribed reports admitted subscriptions only.
func (r *Registry) IsSubscribed(sid core.SocketID, channel string) bool {
	r.mu.RLock()
	e, ok := r.sockets[sid]
	var sub *subscription
	if ok {
		sub = e.Channels[channel]
	}
	r.mu.RUnlock()
	if sub == nil {
		return false
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return !sub.held && !sub.gone
}

// Subscribers includes held subscriptions.
func (r *Registry) Subscribers(channel string) []core.Subscriber {
	ts := r.targets(channel)
	out := make([]core.Subscriber, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.sub)
	}
	return out
}

func (r *Registry) targets(channel string) []target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.channels[channel]
	out := make([]target, 0, len(set))
	for sid := range set {
		e := r.sockets[sid]
		out = append(out, target{sub: e.Sub, state: e.Channels[channel]})
	}
	return out
}

// Channels lists channels with at least one local subscriber.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}

func (r *Registry) Cancel(sid core.SocketID) bool {
	r.mu.RLock()
	e, ok := r.sockets[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled socket")
	return true
}
