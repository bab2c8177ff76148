package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog/internal/platform/metrics"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, opts ...Option) (*Hub, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m), WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewHub(opts...), m
}

func TestHub_BroadcastReachesAllListeners(t *testing.T) {
	hub, m := newTestHub(t)
	a := hub.Attach(ListenerInfo{RemoteAddr: "10.0.0.1"})
	b := hub.Attach(ListenerInfo{RemoteAddr: "10.0.0.2"})

	hub.Broadcast(EventRecordCreated, map[string]string{"id": "p-1"})

	for _, l := range []*Listener{a, b} {
		select {
		case msg := <-l.C():
			assert.Equal(t, EventRecordCreated, msg.Event)
			assert.Equal(t, fixedNow, msg.Timestamp)
			assert.Equal(t, map[string]string{"id": "p-1"}, msg.Data)
		default:
			t.Fatalf("listener %s received nothing", l.ID())
		}
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsSent.WithLabelValues(EventRecordCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Listeners))
}

func TestHub_BroadcastWithoutListenersIsNoop(t *testing.T) {
	hub, _ := newTestHub(t)
	assert.NotPanics(t, func() { hub.Broadcast(EventRecordCreated, nil) })
}

func TestHub_LateListenerMissesEarlierMessages(t *testing.T) {
	hub, _ := newTestHub(t)
	hub.Broadcast(EventRecordCreated, "early")

	l := hub.Attach(ListenerInfo{})
	select {
	case msg := <-l.C():
		t.Fatalf("unexpected message %v", msg)
	default:
	}
}

func TestHub_FullBufferDropsInsteadOfBlocking(t *testing.T) {
	hub, m := newTestHub(t, WithBuffer(1))
	l := hub.Attach(ListenerInfo{})

	done := make(chan struct{})
	go func() {
		hub.Broadcast("e", 1)
		hub.Broadcast("e", 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow listener")
	}

	msg := <-l.C()
	assert.Equal(t, 1, msg.Data)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDrops))
}

func TestHub_DetachClosesChannel(t *testing.T) {
	hub, m := newTestHub(t)
	l := hub.Attach(ListenerInfo{})

	hub.Detach(l)
	hub.Detach(l)

	_, ok := <-l.C()
	assert.False(t, ok)
	assert.Equal(t, 0, hub.Len())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Listeners))

	assert.NotPanics(t, func() { hub.Broadcast("e", nil) })
}

func TestHub_Close(t *testing.T) {
	hub, _ := newTestHub(t)
	a := hub.Attach(ListenerInfo{})
	b := hub.Attach(ListenerInfo{})

	hub.Close()

	_, okA := <-a.C()
	_, okB := <-b.C()
	assert.False(t, okA)
	assert.False(t, okB)
}

func TestWebsocketHandler_StreamsEnvelope(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := httptest.NewServer(NewWebsocketHandler(hub, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(EventRecordCreated, map[string]any{"id": "p-1", "name": "Laptop"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Event     string         `json:"event"`
		Data      map[string]any `json:"data"`
		Timestamp time.Time      `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, EventRecordCreated, got.Event)
	assert.Equal(t, "Laptop", got.Data["name"])
	assert.True(t, fixedNow.Equal(got.Timestamp))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
