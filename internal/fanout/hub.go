package fanout

import (
	"errors"
	"strings"
	"sync"

	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/observability/metrics"
	"go.uber.org/zap"
)

var (
	ErrHubUnavailable = errors.New("hub_unavailable")
	ErrInvalidScope   = errors.New("invalid_scope")
)

// Hub routes envelopes to per-scope actors. Actors are created lazily on
// the first subscribe and torn down when the last listener disconnects;
// a scope with no listeners costs nothing.
type Hub struct {
	mu     sync.RWMutex
	actors map[string]*actor
	cfg    *config.MessagingConfigHolder
	log    *zap.Logger
}

type actor struct {
	scope   string
	mailbox chan Envelope
	quit    chan struct{}

	mu      sync.Mutex
	backlog []Envelope
	subs    map[uint64]chan Envelope
	nextID  uint64

	backlogSize int
}

type Subscription struct {
	hub   *Hub
	scope string
	id    uint64
	ch    chan Envelope
	once  sync.Once
}

func NewHub(cfg *config.MessagingConfigHolder, log *zap.Logger) *Hub {
	return &Hub{
		actors: make(map[string]*actor),
		cfg:    cfg,
		log:    log.Named("fanout.hub"),
	}
}

// Publish hands the envelope to the scope's actor. Delivery to
// subscribers happens on the actor goroutine, so two publishes to the
// same scope are observed by every listener in the same order. A scope
// with no listeners has no actor and the event is dropped outright, as
// is an event that finds the mailbox full; polling reconciliation
// covers both gaps.
func (h *Hub) Publish(scope string, env Envelope) {
	if h == nil {
		return
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return
	}

	h.mu.RLock()
	a := h.actors[scope]
	h.mu.RUnlock()
	if a == nil {
		return
	}

	select {
	case a.mailbox <- env:
		metrics.FanoutEvents.WithLabelValues(env.Type).Inc()
	default:
		h.log.Warn("fanout mailbox full, dropping event",
			zap.String("scope", scope),
			zap.String("type", env.Type))
	}
}

// Subscribe registers a listener on the scope and returns the retained
// backlog so late joiners can render recent activity before the first
// live event arrives.
func (h *Hub) Subscribe(scope string) (*Subscription, []Envelope, error) {
	if h == nil {
		return nil, nil, ErrHubUnavailable
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, nil, ErrInvalidScope
	}

	a := h.ensureActor(scope)
	buffer := h.cfg.Get().ListenerBufferSize

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	ch := make(chan Envelope, buffer)
	a.subs[id] = ch
	backlog := append([]Envelope(nil), a.backlog...)
	a.mu.Unlock()

	metrics.FanoutListeners.Inc()
	return &Subscription{hub: h, scope: scope, id: id, ch: ch}, backlog, nil
}

func (h *Hub) ensureActor(scope string) *actor {
	h.mu.RLock()
	current := h.actors[scope]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.actors[scope]
	if current != nil {
		return current
	}

	cfg := h.cfg.Get()
	current = &actor{
		scope:       scope,
		mailbox:     make(chan Envelope, cfg.FanoutBacklogSize),
		quit:        make(chan struct{}),
		subs:        make(map[uint64]chan Envelope),
		backlogSize: cfg.FanoutBacklogSize,
	}
	h.actors[scope] = current
	go current.run()
	return current
}

func (a *actor) run() {
	for {
		select {
		case <-a.quit:
			return
		case env := <-a.mailbox:
			a.deliver(env)
		}
	}
}

func (a *actor) deliver(env Envelope) {
	a.mu.Lock()
	a.backlog = append(a.backlog, env)
	if len(a.backlog) > a.backlogSize {
		a.backlog = a.backlog[len(a.backlog)-a.backlogSize:]
	}
	subs := make([]chan Envelope, 0, len(a.subs))
	for _, ch := range a.subs {
		subs = append(subs, ch)
	}
	a.mu.Unlock()

	// A slow listener loses the event rather than stalling the scope.
	for _, ch := range subs {
		select {
		case ch <- env:
		default:
		}
	}
}

func (h *Hub) unsubscribe(scope string, id uint64) {
	h.mu.RLock()
	a := h.actors[scope]
	h.mu.RUnlock()
	if a == nil {
		return
	}

	a.mu.Lock()
	_, present := a.subs[id]
	delete(a.subs, id)
	remaining := len(a.subs)
	a.mu.Unlock()
	if present {
		metrics.FanoutListeners.Dec()
	}
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.actors[scope]
	if current != a {
		h.mu.Unlock()
		return
	}
	a.mu.Lock()
	empty := len(a.subs) == 0
	a.mu.Unlock()
	if empty {
		delete(h.actors, scope)
		close(a.quit)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Envelope {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.scope, s.id)
	})
}
