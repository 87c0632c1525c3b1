package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempoapp/tempo-worker/internal/errors"
	"github.com/tempoapp/tempo-worker/internal/logger"
)

func TestBusRequestReply(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	bus.Handle(MessageGetCacheStats, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return map[string]int{"entries": 7}, nil
	})

	reply := bus.Request(context.Background(), Message{Type: MessageGetCacheStats})
	require.True(t, reply.Success)
	assert.Equal(t, MessageGetCacheStats, reply.Type)
	assert.Equal(t, map[string]int{"entries": 7}, reply.Data)
}

func TestBusRequestUnknownType(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	reply := bus.Request(context.Background(), Message{Type: "NO_SUCH_TYPE"})
	assert.False(t, reply.Success)
	assert.Equal(t, "unknown message type", reply.Error)
}

func TestBusRequestHandlerError(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	bus.Handle(MessageSyncReminders, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.Newf("queue unavailable").Build()
	})

	reply := bus.Request(context.Background(), Message{Type: MessageSyncReminders})
	assert.False(t, reply.Success)
	assert.Contains(t, reply.Error, "queue unavailable")
}

func TestBusRequestTimesOut(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	bus.replyTimeout = 50 * time.Millisecond
	release := make(chan struct{})
	bus.Handle(MessagePing, func(ctx context.Context, _ json.RawMessage) (any, error) {
		<-release
		return nil, nil
	})

	reply := bus.Request(context.Background(), Message{Type: MessagePing})
	assert.False(t, reply.Success)
	assert.Equal(t, "reply timeout", reply.Error)
	close(release)
}

func TestBusBroadcast(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	id1, ch1 := bus.Subscribe()
	id2, ch2 := bus.Subscribe()
	defer bus.Unsubscribe(id1)
	assert.Equal(t, 2, bus.SessionCount())

	bus.BroadcastPayload(MessageSyncComplete, &SyncResult{Tag: SyncTagReminders, Replayed: 3})

	for _, ch := range []<-chan Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, MessageSyncComplete, msg.Type)
			var result SyncResult
			require.NoError(t, json.Unmarshal(msg.Payload, &result))
			assert.Equal(t, 3, result.Replayed)
		case <-time.After(time.Second):
			t.Fatal("broadcast not delivered")
		}
	}

	bus.Unsubscribe(id2)
	_, open := <-ch2
	assert.False(t, open)
	assert.Equal(t, 1, bus.SessionCount())
}

func TestBusBroadcastSkipsSlowSessions(t *testing.T) {
	t.Parallel()

	bus := NewBus(logger.Default())
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	// Overfill the session buffer; extra messages are dropped, not blocked on.
	for i := 0; i < broadcastBuffer+5; i++ {
		bus.Broadcast(Message{Type: MessagePing})
	}
	assert.Len(t, ch, broadcastBuffer)
}
