package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tempoapp/tempo-worker/internal/logger"
)

// MessageType identifies a bus message.
type MessageType string

const (
	MessageSkipWaiting          MessageType = "SKIP_WAITING"
	MessageSetImplementation    MessageType = "SET_IMPLEMENTATION"
	MessageSyncReminders        MessageType = "SYNC_REMINDERS"
	MessageClearNotifications   MessageType = "CLEAR_NOTIFICATIONS"
	MessageCacheMaintenance     MessageType = "CACHE_MAINTENANCE"
	MessageUpdateConfig         MessageType = "UPDATE_CONFIG"
	MessageGetCacheStats        MessageType = "GET_CACHE_STATS"
	MessageCleanupNotifications MessageType = "CLEANUP_NOTIFICATIONS"
	MessagePing                 MessageType = "PING"
	MessagePong                 MessageType = "PONG"
	MessageSyncComplete         MessageType = "SYNC_COMPLETE"
	MessageOpenWindow           MessageType = "OPEN_WINDOW"
)

// defaultReplyTimeout bounds how long a requester waits for a handler
// before giving up with a failure reply.
const defaultReplyTimeout = 3 * time.Second

// broadcastBuffer is the per-session channel depth. A session that falls
// this far behind starts dropping messages rather than blocking senders.
const broadcastBuffer = 16

// Message is a typed envelope exchanged between clients and the worker.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply carries the outcome of a Request back to the caller.
type Reply struct {
	Type    MessageType `json:"type"`
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    any         `json:"data,omitempty"`
}

// SetImplementationPayload toggles the navigation routing policy.
type SetImplementationPayload struct {
	UseNewImplementation bool `json:"useNewImplementation"`
}

// ClearNotificationsPayload optionally narrows clearing to one tag.
type ClearNotificationsPayload struct {
	Tag string `json:"tag,omitempty"`
}

// PongData answers a PING with liveness and capability information.
type PongData struct {
	Timestamp    int64    `json:"timestamp"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
}

// Handler processes one message type and returns reply data.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Bus routes typed messages to registered handlers and fans broadcasts
// out to connected sessions.
type Bus struct {
	mu           sync.RWMutex
	handlers     map[MessageType]Handler
	sessions     map[uint64]chan Message
	nextSession  uint64
	replyTimeout time.Duration
	log          logger.Logger
}

// NewBus creates a Bus with the default reply timeout.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.Default()
	}
	return &Bus{
		handlers:     make(map[MessageType]Handler),
		sessions:     make(map[uint64]chan Message),
		replyTimeout: defaultReplyTimeout,
		log:          log,
	}
}

// Handle registers the handler for a message type, replacing any
// previous registration.
func (b *Bus) Handle(t MessageType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = h
}

// Request dispatches a message to its handler and waits for the reply.
// A missing handler, a handler error, or a reply that does not arrive
// within the reply timeout all produce a failure reply; Request never
// panics the caller with a hung wait.
func (b *Bus) Request(ctx context.Context, msg Message) Reply {
	b.mu.RLock()
	h, ok := b.handlers[msg.Type]
	b.mu.RUnlock()
	if !ok {
		return Reply{Type: msg.Type, Success: false, Error: "unknown message type"}
	}

	type outcome struct {
		data any
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := h(ctx, msg.Payload)
		done <- outcome{data: data, err: err}
	}()

	timer := time.NewTimer(b.replyTimeout)
	defer timer.Stop()
	select {
	case out := <-done:
		if out.err != nil {
			b.log.Warn("message handler failed",
				logger.String("type", string(msg.Type)),
				logger.Error(out.err))
			return Reply{Type: msg.Type, Success: false, Error: out.err.Error()}
		}
		return Reply{Type: msg.Type, Success: true, Data: out.data}
	case <-timer.C:
		b.log.Warn("message handler timed out",
			logger.String("type", string(msg.Type)),
			logger.Duration("timeout", b.replyTimeout))
		return Reply{Type: msg.Type, Success: false, Error: "reply timeout"}
	case <-ctx.Done():
		return Reply{Type: msg.Type, Success: false, Error: ctx.Err().Error()}
	}
}

// Subscribe attaches a broadcast session. The caller must Unsubscribe
// with the returned id when done.
func (b *Bus) Subscribe() (uint64, <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSession++
	id := b.nextSession
	ch := make(chan Message, broadcastBuffer)
	b.sessions[id] = ch
	return id, ch
}

// Unsubscribe detaches a session and closes its channel.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.sessions[id]; ok {
		delete(b.sessions, id)
		close(ch)
	}
}

// Broadcast sends a message to every connected session. Sessions with
// full buffers are skipped.
func (b *Bus) Broadcast(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.sessions {
		select {
		case ch <- msg:
		default:
			b.log.Debug("broadcast dropped for slow session",
				logger.Uint64("session", id),
				logger.String("type", string(msg.Type)))
		}
	}
}

// SessionCount reports the number of connected broadcast sessions.
func (b *Bus) SessionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions)
}

// BroadcastPayload marshals v and broadcasts it under the given type.
func (b *Bus) BroadcastPayload(t MessageType, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		b.log.Error("broadcast payload marshal failed",
			logger.String("type", string(t)), logger.Error(err))
		return
	}
	b.Broadcast(Message{Type: t, Payload: raw})
}
