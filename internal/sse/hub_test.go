package sse

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stageroom/stageroom-backend/internal/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestHubPreservesBroadcastOrder(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := RunChannel(uuid.New())

	client := hub.NewSSEClient()
	hub.AddChannel(client, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventRunStarted, Data: map[string]any{"total": 8}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventVariant, Data: map[string]any{"variant_id": "center-accurate"}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventComplete})

	if got := recvMessage(t, client.Outbound, time.Second); got.Event != SSEEventRunStarted {
		t.Fatalf("first event: want=%s got=%s", SSEEventRunStarted, got.Event)
	}
	if got := recvMessage(t, client.Outbound, time.Second); got.Event != SSEEventVariant {
		t.Fatalf("second event: want=%s got=%s", SSEEventVariant, got.Event)
	}
	if got := recvMessage(t, client.Outbound, time.Second); !got.Event.Terminal() {
		t.Fatalf("third event should be terminal, got=%s", got.Event)
	}
}

func TestHubCloseClientStopsDelivery(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := RunChannel(uuid.New())

	client := hub.NewSSEClient()
	hub.AddChannel(client, channel)
	hub.CloseClient(client)

	select {
	case _, ok := <-client.Outbound:
		if ok {
			t.Fatalf("outbound should be closed after CloseClient")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for outbound close")
	}

	// Broadcast after close must not panic or deliver.
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventProgress})

	select {
	case <-client.Done():
	default:
		t.Fatalf("Done should be closed after CloseClient")
	}
}

func TestHubChannelsAreIsolated(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	chanA := RunChannel(uuid.New())
	chanB := RunChannel(uuid.New())

	clientA := hub.NewSSEClient()
	hub.AddChannel(clientA, chanA)
	clientB := hub.NewSSEClient()
	hub.AddChannel(clientB, chanB)

	hub.Broadcast(SSEMessage{Channel: chanA, Event: SSEEventRunStarted})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventRunStarted {
		t.Fatalf("clientA: want=%s got=%s", SSEEventRunStarted, got.Event)
	}
	select {
	case msg := <-clientB.Outbound:
		t.Fatalf("clientB should not receive chanA traffic, got=%s", msg.Event)
	case <-time.After(100 * time.Millisecond):
	}
}
