// Package notify broadcasts product events to connected listeners.
//
// Delivery is best-effort: a message reaches only the listeners attached at
// the moment of the broadcast, nothing is queued for absent listeners and a
// listener whose buffer is full misses the message.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"catalog/internal/platform/metrics"
)

// EventRecordCreated is broadcast after a product is persisted.
const EventRecordCreated = "record:created"

const defaultBuffer = 16

// Message is the envelope delivered to listeners.
type Message struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ListenerInfo describes where a listener connected from. Used for logs only.
type ListenerInfo struct {
	RemoteAddr string
	UserAgent  string
}

// Listener receives messages on C until it is detached.
type Listener struct {
	id   string
	info ListenerInfo
	ch   chan Message
}

func (l *Listener) ID() string { return l.id }

// C is closed when the listener is detached.
func (l *Listener) C() <-chan Message { return l.ch }

// Hub fans messages out to attached listeners.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]*Listener
	buffer    int
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Hub)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithBuffer sets how many undelivered messages a listener may hold.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		listeners: make(map[string]*Listener),
		buffer:    defaultBuffer,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Attach(info ListenerInfo) *Listener {
	l := &Listener{
		id:   uuid.NewString(),
		info: info,
		ch:   make(chan Message, h.buffer),
	}

	h.mu.Lock()
	h.listeners[l.id] = l
	n := len(h.listeners)
	h.mu.Unlock()

	h.metrics.SetListeners(n)
	h.logger.Info("listener attached",
		"listener_id", l.id,
		"remote_addr", info.RemoteAddr,
		"user_agent", info.UserAgent,
		"listeners", n,
	)
	return l
}

// Detach removes l and closes its channel. Detaching twice is a no-op.
func (h *Hub) Detach(l *Listener) {
	h.mu.Lock()
	if _, ok := h.listeners[l.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.listeners, l.id)
	close(l.ch)
	n := len(h.listeners)
	h.mu.Unlock()

	h.metrics.SetListeners(n)
	h.logger.Info("listener detached",
		"listener_id", l.id,
		"remote_addr", l.info.RemoteAddr,
		"listeners", n,
	)
}

// Broadcast wraps payload in an envelope stamped with the current time and
// hands it to every attached listener. It never blocks.
func (h *Hub) Broadcast(event string, payload any) {
	h.Publish(Message{Event: event, Data: payload, Timestamp: h.now().UTC()})
}

// Publish delivers a ready-made envelope, keeping its timestamp.
func (h *Hub) Publish(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, l := range h.listeners {
		select {
		case l.ch <- msg:
		default:
			h.metrics.IncrementNotificationDropped()
			h.logger.Warn("listener buffer full, dropping message",
				"listener_id", l.id,
				"event", msg.Event,
			)
		}
	}
	h.metrics.IncrementNotificationSent(msg.Event)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close detaches every listener.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		all = append(all, l)
	}
	h.mu.RUnlock()

	for _, l := range all {
		h.Detach(l)
	}
}
