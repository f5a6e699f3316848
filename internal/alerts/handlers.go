package alerts

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/internal/server"
	"github.com/HerbHall/netdash/pkg/models"
)

const maxBodyBytes = 64 << 10

// feedResponse is the body of GET /feed.
type feedResponse struct {
	Version     uint64             `json:"version"`
	Alerts      []models.AlertItem `json:"alerts"`
	UnreadTotal int                `json:"unread_total"`
	Unread      map[string]int     `json:"unread"`
}

// deviceFeedResponse is the body of GET /devices/{key}.
type deviceFeedResponse struct {
	Key    string             `json:"key"`
	Alerts []models.AlertItem `json:"alerts"`
	Unread int                `json:"unread"`
}

// markReadResponse is the body of POST /devices/{key}/read.
type markReadResponse struct {
	Key     string `json:"key"`
	Changed bool   `json:"changed"`
}

// whiteListRequest is the JSON body for POST /whitelist.
type whiteListRequest struct {
	Words []string `json:"words"`
}

func (p *Plugin) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/feed", Handler: p.handleFeed},
		{Method: "DELETE", Path: "/feed", Handler: p.handleClearFeed},
		{Method: "GET", Path: "/devices/{key}", Handler: p.handleDeviceFeed},
		{Method: "POST", Path: "/devices/{key}/read", Handler: p.handleMarkRead},
		{Method: "GET", Path: "/stream", Handler: p.handleStream},
		{Method: "GET", Path: "/live", Handler: p.handleLive},
		{Method: "GET", Path: "/whitelist", Handler: p.handleListWords},
		{Method: "POST", Path: "/whitelist", Handler: p.handleAddWords},
		{Method: "DELETE", Path: "/whitelist/{word}", Handler: p.handleDeleteWord},
	}
}

// handleFeed returns the global feed, newest first.
func (p *Plugin) handleFeed(w http.ResponseWriter, _ *http.Request) {
	s := p.correlator.Snapshot()
	alerts := s.Global
	if alerts == nil {
		alerts = []models.AlertItem{}
	}
	unread := s.Unread
	if unread == nil {
		unread = map[string]int{}
	}
	writeJSON(w, http.StatusOK, feedResponse{
		Version:     s.Version,
		Alerts:      alerts,
		UnreadTotal: s.UnreadTotal(),
		Unread:      unread,
	})
}

func (p *Plugin) handleClearFeed(w http.ResponseWriter, r *http.Request) {
	p.correlator.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleDeviceFeed(w http.ResponseWriter, r *http.Request) {
	key, ok := deviceKey(w, r)
	if !ok {
		return
	}
	s := p.correlator.Snapshot()
	alerts := s.Feed(key)
	if alerts == nil {
		alerts = []models.AlertItem{}
	}
	writeJSON(w, http.StatusOK, deviceFeedResponse{Key: key, Alerts: alerts, Unread: s.UnreadFor(key)})
}

func (p *Plugin) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	key, ok := deviceKey(w, r)
	if !ok {
		return
	}
	changed := p.correlator.MarkRead(r.Context(), key)
	writeJSON(w, http.StatusOK, markReadResponse{Key: key, Changed: changed})
}

func (p *Plugin) handleStream(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, p.status())
}

func (p *Plugin) handleLive(w http.ResponseWriter, r *http.Request) {
	p.hub.ServeHTTP(w, r)
}

func (p *Plugin) handleListWords(w http.ResponseWriter, r *http.Request) {
	if !p.requireWhiteList(w, r) {
		return
	}
	words, err := p.whiteList.GetWhiteList(r.Context())
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	if words == nil {
		words = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"words": words})
}

// handleAddWords adds words to the white-list. Blank and duplicate words
// are dropped before the backend call.
func (p *Plugin) handleAddWords(w http.ResponseWriter, r *http.Request) {
	if !p.requireWhiteList(w, r) {
		return
	}
	var req whiteListRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		server.BadRequest(w, fmt.Sprintf("invalid JSON body: %v", err), r.URL.Path)
		return
	}
	words := cleanWords(req.Words)
	if len(words) == 0 {
		server.BadRequest(w, "at least one word is required", r.URL.Path)
		return
	}
	if err := p.whiteList.AddWhiteListWords(r.Context(), words); err != nil {
		server.WriteError(w, r, err)
		return
	}
	p.logger.Info("white-list words added", zap.Strings("words", words))
	writeJSON(w, http.StatusCreated, map[string][]string{"words": words})
}

func (p *Plugin) handleDeleteWord(w http.ResponseWriter, r *http.Request) {
	if !p.requireWhiteList(w, r) {
		return
	}
	word := strings.TrimSpace(r.PathValue("word"))
	if word == "" {
		server.BadRequest(w, "word is required", r.URL.Path)
		return
	}
	if err := p.whiteList.DeleteWhiteListWord(r.Context(), word); err != nil {
		server.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) requireWhiteList(w http.ResponseWriter, r *http.Request) bool {
	if p.whiteList == nil {
		server.Unavailable(w, "white-list backend not configured", r.URL.Path)
		return false
	}
	return true
}

// deviceKey normalizes the {key} path value. MACs in any notation and
// "ip:" keys are accepted.
func deviceKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("key")
	key := identity.NormalizeKey(raw)
	if key == "" {
		server.BadRequest(w, fmt.Sprintf("invalid device key %q", raw), r.URL.Path)
		return "", false
	}
	return key, true
}

func cleanWords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, w := range in {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
