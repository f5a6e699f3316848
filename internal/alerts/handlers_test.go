package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/netdash/internal/alertstream"
	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/correlator"
	"github.com/HerbHall/netdash/internal/devicestore"
	"github.com/HerbHall/netdash/internal/event"
	"github.com/HerbHall/netdash/internal/live"
	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/internal/server"
	"github.com/HerbHall/netdash/internal/testutil"
	"github.com/HerbHall/netdash/pkg/models"
)

const (
	coreMAC = "AA:AA:AA:AA:AA:01"
	coreKey = "aaaaaaaaaa01"
)

type staticInventory struct {
	snap devicestore.Snapshot
}

func (i staticInventory) Snapshot() devicestore.Snapshot { return i.snap }

type fakeWhiteList struct {
	mu      sync.Mutex
	words   []string
	added   [][]string
	deleted []string
	err     error
}

func (f *fakeWhiteList) GetWhiteList(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.words...), f.err
}

func (f *fakeWhiteList) AddWhiteListWords(_ context.Context, words []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.added = append(f.added, words)
	f.words = append(f.words, words...)
	return nil
}

func (f *fakeWhiteList) DeleteWhiteListWord(_ context.Context, word string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, word)
	return nil
}

// idleDialer never connects; it blocks until the attempt is cancelled.
type idleDialer struct{}

func (idleDialer) Dial(ctx context.Context, _ string) (alertstream.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	plugin    *Plugin
	corr      *correlator.Correlator
	whiteList *fakeWhiteList
	bus       *event.Bus
	mux       *http.ServeMux
}

func newTestEnv(t *testing.T, streamURL string, dialer alertstream.Dialer) *testEnv {
	t.Helper()
	inv := staticInventory{snap: devicestore.Snapshot{
		Version: 1,
		Devices: []models.DeviceRecord{
			testutil.NewDevice(testutil.WithHostname("core-sw"), testutil.WithMAC(coreMAC), testutil.WithIP("10.0.0.1")),
		},
	}}
	bus := event.NewBus(testutil.Logger())
	corr := correlator.New(inv, testutil.Logger(), correlator.WithPublisher(bus))
	wl := &fakeWhiteList{words: []string{"failed", "denied"}}

	p := New(Deps{
		Correlator: corr,
		WhiteList:  wl,
		Bus:        bus,
		StreamURL:  streamURL,
		Dialer:     dialer,
	})
	require.NoError(t, p.Init(viper.New(), testutil.Logger()))
	require.NoError(t, p.ValidateConfig())

	mux := http.NewServeMux()
	for _, rt := range p.Routes() {
		mux.HandleFunc(rt.Method+" /api/v1/alerts"+rt.Path, rt.Handler)
	}
	return &testEnv{plugin: p, corr: corr, whiteList: wl, bus: bus, mux: mux}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/api/v1/alerts"+path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, "/api/v1/alerts"+path, nil)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func TestHandleFeed(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	ctx := context.Background()
	env.corr.Ingest(ctx, alertstream.Alert{Message: "first", MAC: coreMAC})
	env.corr.Ingest(ctx, alertstream.Alert{Message: "second", IP: "192.0.2.50"})

	w := env.do(http.MethodGet, "/feed", "")
	require.Equal(t, http.StatusOK, w.Code)

	var feed feedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&feed))
	require.Len(t, feed.Alerts, 2)
	assert.Equal(t, "second", feed.Alerts[0].Message)
	assert.Empty(t, feed.Alerts[0].DeviceKey)
	assert.Equal(t, coreKey, feed.Alerts[1].DeviceKey)
	assert.Equal(t, 1, feed.UnreadTotal)
	assert.Equal(t, map[string]int{coreKey: 1}, feed.Unread)
	assert.Equal(t, uint64(2), feed.Version)
}

func TestHandleFeed_Empty(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})

	w := env.do(http.MethodGet, "/feed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alerts":[]`)
}

func TestHandleDeviceFeedAndMarkRead(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	env.corr.Ingest(context.Background(), alertstream.Alert{Message: "login failed", IP: "10.0.0.1"})

	w := env.do(http.MethodGet, "/devices/aa-aa-aa-aa-aa-01", "")
	require.Equal(t, http.StatusOK, w.Code)
	var feed deviceFeedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&feed))
	assert.Equal(t, coreKey, feed.Key)
	assert.Equal(t, 1, feed.Unread)
	require.Len(t, feed.Alerts, 1)

	w = env.do(http.MethodPost, "/devices/"+coreMAC+"/read", "")
	require.Equal(t, http.StatusOK, w.Code)
	var mr markReadResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&mr))
	assert.True(t, mr.Changed)

	w = env.do(http.MethodPost, "/devices/"+coreMAC+"/read", "")
	mr = markReadResponse{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&mr))
	assert.False(t, mr.Changed)

	assert.Equal(t, 0, env.corr.Snapshot().UnreadFor(coreKey))
	assert.Len(t, env.corr.Snapshot().Feed(coreKey), 1)
}

func TestHandleDeviceFeed_InvalidKey(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})

	for _, path := range []string{"/devices/zz", "/devices/ip:unknown"} {
		w := env.do(http.MethodGet, path, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestHandleClearFeed(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	env.corr.Ingest(context.Background(), alertstream.Alert{Message: "x", MAC: coreMAC})

	w := env.do(http.MethodDelete, "/feed", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	s := env.corr.Snapshot()
	assert.Empty(t, s.Global)
	assert.Zero(t, s.UnreadTotal())
}

func TestHandleStream_BeforeStart(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})

	w := env.do(http.MethodGet, "/stream", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st StreamStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, alertstream.StateConnecting, st.State)
	assert.Equal(t, "ws://backend.invalid/white_list/ws", st.URL)
}

func TestHandleWhiteList(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})

	w := env.do(http.MethodGet, "/whitelist", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"words":["failed","denied"]}`, w.Body.String())

	w = env.do(http.MethodPost, "/whitelist", `{"words":[" err-disabled ","", "err-disabled", "flap"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, [][]string{{"err-disabled", "flap"}}, env.whiteList.added)

	w = env.do(http.MethodPost, "/whitelist", `{"words":["  "]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/whitelist", `{"words":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/whitelist/flap", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"flap"}, env.whiteList.deleted)
}

func TestHandleWhiteList_BackendError(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	env.whiteList.err = &backend.HTTPError{Method: "GET", Path: "/white_list/get_white_list", Status: 503, Body: "db offline"}

	w := env.do(http.MethodGet, "/whitelist", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	var p server.Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Contains(t, p.Detail, "db offline")
}

func TestValidateConfig(t *testing.T) {
	p := New(Deps{StreamURL: "ws://backend.invalid/ws", Dialer: idleDialer{}})
	require.NoError(t, p.Init(viper.New(), testutil.Logger()))
	assert.Error(t, p.ValidateConfig())

	env := newTestEnv(t, "ws://backend.invalid/ws", idleDialer{})
	cfg := viper.New()
	cfg.Set("mqtt.qos", 2)
	require.NoError(t, env.plugin.Init(cfg, testutil.Logger()))
	assert.Error(t, env.plugin.ValidateConfig())
}

func TestValidateConfig_QoSRange(t *testing.T) {
	tests := []struct {
		qos     int
		wantErr bool
	}{
		{0, false},
		{1, false},
		{-1, true},
		{256, true},
		{257, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.qos), func(t *testing.T) {
			env := newTestEnv(t, "ws://backend.invalid/ws", idleDialer{})
			cfg := viper.New()
			cfg.Set("mqtt.qos", tt.qos)
			require.NoError(t, env.plugin.Init(cfg, testutil.Logger()))
			err := env.plugin.ValidateConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				assert.Equal(t, byte(tt.qos), env.plugin.mqtt.QoS)
			}
		})
	}
}

func TestInit_RequiresStreamURL(t *testing.T) {
	p := New(Deps{Dialer: idleDialer{}})
	assert.Error(t, p.Init(viper.New(), testutil.Logger()))

	cfg := viper.New()
	cfg.Set("stream_url", "ws://override.invalid/ws")
	require.NoError(t, p.Init(cfg, testutil.Logger()))
	assert.Equal(t, "ws://override.invalid/ws", p.status().URL)
}

// alertBackend serves the white-list socket and writes frames to every
// connection, then holds it open.
func alertBackend(t *testing.T, frames ...string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		for _, f := range frames {
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		<-conn.CloseRead(r.Context()).Done()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/white_list/ws"
}

func TestStart_StreamFeedsCorrelator(t *testing.T) {
	url := alertBackend(t,
		`{"message":"interface down","device":{"mac":"aa:aa:aa:aa:aa:01"}}`,
		`plain text alert`,
	)
	env := newTestEnv(t, url, nil)

	require.NoError(t, env.plugin.Start(context.Background()))
	t.Cleanup(func() { env.plugin.Stop() })

	require.Eventually(t, func() bool {
		return len(env.corr.Snapshot().Global) == 2
	}, 5*time.Second, 10*time.Millisecond)

	s := env.corr.Snapshot()
	assert.Equal(t, "plain text alert", s.Global[0].Message)
	assert.Equal(t, "interface down", s.Global[1].Message)
	assert.Equal(t, 1, s.UnreadFor(coreKey))

	require.Eventually(t, func() bool {
		return env.plugin.Health(context.Background()).Status == plugin.HealthOK
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLive_HelloThenAlerts(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	require.NoError(t, env.plugin.Start(context.Background()))
	t.Cleanup(func() { env.plugin.Stop() })

	srv := httptest.NewServer(env.mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/alerts/live", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// Stream state frames may interleave; skip them.
	read := func() live.Message {
		t.Helper()
		for {
			_, data, err := conn.Read(ctx)
			require.NoError(t, err)
			var msg live.Message
			require.NoError(t, json.Unmarshal(data, &msg))
			if msg.Type != TopicStreamState {
				return msg
			}
		}
	}

	hello := read()
	assert.Equal(t, live.TypeHello, hello.Type)

	require.Eventually(t, func() bool { return env.plugin.hub.Clients() == 1 }, 5*time.Second, 10*time.Millisecond)
	env.corr.Ingest(context.Background(), alertstream.Alert{Message: "port security violation", MAC: coreMAC})

	msg := read()
	assert.Equal(t, correlator.TopicAlertReceived, msg.Type)
	payload, ok := msg.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "port security violation", payload["message"])
	assert.Equal(t, coreKey, payload["device_key"])
}

func TestStop_Idempotent(t *testing.T) {
	env := newTestEnv(t, "ws://backend.invalid/white_list/ws", idleDialer{})
	require.NoError(t, env.plugin.Start(context.Background()))
	require.NoError(t, env.plugin.Stop())
	require.NoError(t, env.plugin.Stop())
}
