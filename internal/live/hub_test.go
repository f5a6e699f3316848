package live

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/testutil"
)

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	hub := NewHub(testutil.Logger(), opts)
	go hub.Run()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_HelloThenBroadcast(t *testing.T) {
	hub, url := startHub(t, Options{Hello: func() any { return map[string]int{"unread": 3} }})
	conn := dial(t, url)

	hello := readMessage(t, conn)
	assert.Equal(t, TypeHello, hello.Type)
	assert.Equal(t, map[string]any{"unread": float64(3)}, hello.Payload)
	assert.Equal(t, 1, hub.Clients())

	hub.Broadcast("alerts.received", map[string]string{"message": "acl changed"})
	msg := readMessage(t, conn)
	assert.Equal(t, "alerts.received", msg.Type)
	assert.Equal(t, map[string]any{"message": "acl changed"}, msg.Payload)
}

func TestHub_AttachForwardsBusEvents(t *testing.T) {
	hub, url := startHub(t, Options{})
	bus := event.NewBus(testutil.Logger())
	unsub := hub.Attach(bus)
	defer unsub()

	conn := dial(t, url)
	readMessage(t, conn)

	require.NoError(t, bus.Publish(context.Background(), event.Event{Topic: "inventory.updated", Payload: "v2"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "inventory.updated", msg.Type)
	assert.Equal(t, "v2", msg.Payload)
}

func TestHub_ClientLeaves(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, url)
	readMessage(t, conn)

	conn.Close(websocket.StatusNormalClosure, "bye")
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub, url := startHub(t, Options{})
	conn := dial(t, url)
	readMessage(t, conn)

	hub.Stop()
	hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil, Options{})
	for i := 0; i < 300; i++ {
		hub.Broadcast("alerts.received", i)
	}
	assert.Equal(t, 0, hub.Clients())
}
