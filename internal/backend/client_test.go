package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/netdash/pkg/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Body   string
}

// fakeBackend serves canned responses keyed by "METHOD path" and records
// every request it receives.
type fakeBackend struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeBackend(t *testing.T, responses map[string]fakeResponse) (*fakeBackend, *Client) {
	t.Helper()
	fb := &fakeBackend{responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Query:  r.URL.Query(),
			Body:   string(body),
		})
		resp, ok := fb.responses[r.Method+" "+r.URL.EscapedPath()]
		fb.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		status := resp.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(resp.body))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Logger: zap.NewNop()})
	require.NoError(t, err)
	return fb, c
}

func (fb *fakeBackend) last() recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.requests[len(fb.requests)-1]
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{"empty", "", true},
		{"blank", "   ", true},
		{"bad scheme", "ftp://backend", true},
		{"http", "http://backend:8000", false},
		{"https with path", "https://backend/api/", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{BaseURL: tt.baseURL})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://backend:8000", "ws://backend:8000/white_list/ws"},
		{"https://backend/api/", "wss://backend/api/white_list/ws"},
	}
	for _, tt := range tests {
		c, err := New(Config{BaseURL: tt.base})
		require.NoError(t, err)
		if got := c.StreamURL(); got != tt.want {
			t.Errorf("StreamURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestGetDevices_Envelope(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /devices/get_all": {body: `{"devices":[{"hostname":"sw1","mac":"AA:BB:CC:00:00:01","interfaces":[{"name":"Gi0/1","ip_address":"10.0.0.1","status":"up/up"}]}]}`},
	})

	devices, err := c.GetDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "sw1", devices[0].Hostname)
	assert.Equal(t, "10.0.0.1", devices[0].PrimaryIP)
	assert.Equal(t, models.DeviceStatusActive, devices[0].Status)
}

func TestGetDevices_Non2xxIncludesBody(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /devices/get_all": {status: http.StatusBadGateway, body: "poller offline\n"},
	})

	_, err := c.GetDevices(context.Background())
	require.Error(t, err)
	if !strings.Contains(err.Error(), "poller offline") {
		t.Errorf("error = %q, want body text included", err.Error())
	}
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusBadGateway, he.Status)
	assert.Equal(t, "/devices/get_all", he.Path)

	code, ok := StatusCode(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestGetDevices_InvalidJSONYieldsEmpty(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /devices/get_all": {body: "<html>oops</html>"},
	})
	devices, err := c.GetDevices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestGetDevice(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /devices/get_one_record": {body: `[{"hostname":"r1","ip":"10.0.0.9"}]`},
	})

	d, err := c.GetDevice(context.Background(), "10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "r1", d.Hostname)
	assert.Equal(t, "10.0.0.9", d.PrimaryIP)
	assert.Equal(t, []string{"10.0.0.9"}, fb.last().Query["ip"])
}

func TestGetDevice_EmptyBody(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /devices/get_one_record": {body: `{}`},
	})
	_, err := c.GetDevice(context.Background(), "10.0.0.9")
	if !errors.Is(err, ErrNoRecord) {
		t.Errorf("err = %v, want ErrNoRecord", err)
	}
}

func TestQueryParameters(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /devices/refresh_one":                  {},
		"PUT /devices/start_program":                 {},
		"POST /groups/assign_device_to_group":        {},
		"DELETE /groups/delete_device_from_group":    {},
		"PUT /groups/delete_group":                   {},
		"POST /white_list/add_words":                 {},
		"DELETE /white_list/delete_words/ip%20route": {},
	})
	ctx := context.Background()

	require.NoError(t, c.RefreshDevice(ctx, "10.0.0.1", MethodSNMP))
	req := fb.last()
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "10.0.0.1", req.Query["ip"][0])
	assert.Equal(t, "snmp", req.Query["method"][0])

	require.NoError(t, c.StartProgram(ctx, 300, 60, MethodCLI))
	req = fb.last()
	assert.Equal(t, "300", req.Query["device_interval"][0])
	assert.Equal(t, "60", req.Query["mbps_interval"][0])
	assert.Equal(t, "cli", req.Query["method"][0])

	require.NoError(t, c.AssignDeviceToGroup(ctx, "aa:bb", "core & edge"))
	req = fb.last()
	assert.Equal(t, "core & edge", req.Query["group_name"][0])
	assert.Equal(t, "aa:bb", req.Query["device_mac"][0])

	require.NoError(t, c.RemoveDeviceFromGroup(ctx, "aa:bb", "core"))
	assert.Equal(t, http.MethodDelete, fb.last().Method)

	require.NoError(t, c.DeleteGroup(ctx, "core"))
	assert.Equal(t, http.MethodPut, fb.last().Method)

	require.NoError(t, c.AddWhiteListWords(ctx, []string{"shutdown", "no ip"}))
	assert.Equal(t, []string{"shutdown", "no ip"}, fb.last().Query["words"])

	require.NoError(t, c.DeleteWhiteListWord(ctx, "ip route"))
	assert.Equal(t, "/white_list/delete_words/ip%20route", fb.last().Path)
}

func TestAddWhiteListWords_EmptyIsNoop(t *testing.T) {
	fb, c := newFakeBackend(t, nil)
	require.NoError(t, c.AddWhiteListWords(context.Background(), nil))
	assert.Empty(t, fb.requests)
}

func TestAddCredential_JSONBody(t *testing.T) {
	fb, c := newFakeBackend(t, map[string]fakeResponse{
		"POST /credentials/add_device": {status: http.StatusCreated},
	})
	cred := models.CredentialRecord{DeviceType: "cisco_ios", Username: "admin", Password: "pw", IP: "10.0.0.1"}
	require.NoError(t, c.AddCredential(context.Background(), cred))

	var got models.CredentialRecord
	require.NoError(t, json.Unmarshal([]byte(fb.last().Body), &got))
	assert.Equal(t, cred, got)
}

func TestGetCredentials(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /credentials/connection_details": {body: `[{"deviceType":"cisco_ios","user":"admin","password":"pw","ip":"10.0.0.1"}]`},
	})
	creds, err := c.GetCredentials(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "admin", creds[0].Username)
	assert.Equal(t, "10.0.0.1", creds[0].IP)
}

func TestGetGroup_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"object", `{"group":"core","devices":["AA:BB:CC:DD:EE:FF"]}`, []string{"aabbccddeeff"}},
		{"bare members", `["AA-BB-CC-DD-EE-FF","aabb.ccdd.eeff"]`, []string{"aabbccddeeff"}},
		{"unnamed", `{"devices":[]}`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, c := newFakeBackend(t, map[string]fakeResponse{
				"GET /groups/one_group": {body: tt.body},
			})
			g, err := c.GetGroup(context.Background(), "core")
			require.NoError(t, err)
			assert.Equal(t, "core", g.Group)
			assert.Equal(t, tt.want, g.DeviceMACs)
		})
	}
}

func TestGetWhiteList_NeverNil(t *testing.T) {
	_, c := newFakeBackend(t, map[string]fakeResponse{
		"GET /white_list/get_white_list": {body: `null`},
	})
	words, err := c.GetWhiteList(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, words)
	assert.Empty(t, words)
}

type countingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (o *countingObserver) ObserveBackendRequest(_ string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func TestObserverAndRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	obs := &countingObserver{}
	c, err := New(Config{BaseURL: srv.URL, RateLimit: 1000, Burst: 2, Observer: obs})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _ = c.GetDevices(context.Background())
	}
	assert.Equal(t, []int{http.StatusTeapot, http.StatusTeapot, http.StatusTeapot}, obs.statuses)
}

func TestRateLimit_ContextCancelled(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001, Burst: 1})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	// Consume the single token, then wait on a cancelled context.
	_ = c.limiter.Allow()
	cancel()
	_, err = c.GetDevices(ctx)
	require.Error(t, err)
	if !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("error = %q, want rate limit failure", err.Error())
	}
}

func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
		ok   bool
	}{
		{"snmp", MethodSNMP, true},
		{" CLI ", MethodCLI, true},
		{"ssh", Method("ssh"), false},
		{"", Method(""), false},
	}
	for _, tt := range tests {
		got, ok := ParseMethod(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseMethod(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
