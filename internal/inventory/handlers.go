package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/devicestore"
	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/internal/plugin"
	"github.com/HerbHall/netdash/internal/projection"
	"github.com/HerbHall/netdash/internal/server"
	"github.com/HerbHall/netdash/pkg/models"
)

const (
	maxBodyBytes = 1 << 20
	macHexDigits = 12
)

// programRequest is the JSON body for PUT /program.
type programRequest struct {
	DeviceInterval int    `json:"device_interval"`
	MbpsInterval   int    `json:"mbps_interval"`
	Method         string `json:"method"`
}

// groupRequest is the JSON body for POST /groups.
type groupRequest struct {
	Name string `json:"name"`
}

// devicesResponse is the body of GET /devices.
type devicesResponse struct {
	Version       uint64                  `json:"version"`
	UsingFallback bool                    `json:"using_fallback"`
	Message       string                  `json:"message"`
	Devices       []projection.DeviceView `json:"devices"`
	Counts        projection.Counts       `json:"counts"`
}

// deviceDetail is the body of GET /devices/{key}.
type deviceDetail struct {
	Key        string                   `json:"key"`
	Device     models.DeviceRecord      `json:"device"`
	Icon       string                   `json:"icon"`
	IPs        []string                 `json:"ips"`
	Credential *models.CredentialRecord `json:"credential,omitempty"`
	Unread     int                      `json:"unread"`
	Alerts     []models.AlertItem       `json:"alerts"`
}

// refreshResponse is the body of POST /refresh.
type refreshResponse struct {
	Device    *models.DeviceRecord `json:"device,omitempty"`
	Inventory Summary              `json:"inventory"`
}

func (p *Plugin) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/devices", Handler: p.handleListDevices},
		{Method: "GET", Path: "/devices/{key}", Handler: p.handleGetDevice},
		{Method: "GET", Path: "/export", Handler: p.handleExport},
		{Method: "POST", Path: "/reload", Handler: p.handleReload},
		{Method: "POST", Path: "/refresh", Handler: p.handleRefresh},
		{Method: "PUT", Path: "/program", Handler: p.handleStartProgram},
		{Method: "GET", Path: "/status", Handler: p.handleStatus},
		{Method: "GET", Path: "/credentials", Handler: p.handleListCredentials},
		{Method: "POST", Path: "/credentials", Handler: p.handleAddCredential},
		{Method: "GET", Path: "/groups", Handler: p.handleListGroups},
		{Method: "GET", Path: "/groups/{name}", Handler: p.handleGetGroup},
		{Method: "POST", Path: "/groups", Handler: p.handleCreateGroup},
		{Method: "POST", Path: "/groups/{name}/members", Handler: p.handleAssignMember},
		{Method: "DELETE", Path: "/groups/{name}/members/{mac}", Handler: p.handleRemoveMember},
		{Method: "DELETE", Path: "/groups/{name}", Handler: p.handleDeleteGroup},
	}
}

// handleListDevices returns the filtered device view with aggregate counts.
// Query parameters: status, q, group, unread.
func (p *Plugin) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snap, view, ok := p.project(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, devicesResponse{
		Version:       snap.Version,
		UsingFallback: snap.UsingFallback,
		Message:       snap.Message,
		Devices:       view.Devices,
		Counts:        view.Counts,
	})
}

// project applies the status, q, group and unread query parameters to the
// current snapshot. It writes the error response itself and reports false
// on failure.
func (p *Plugin) project(w http.ResponseWriter, r *http.Request) (devicestore.Snapshot, projection.View, bool) {
	q := r.URL.Query()
	status, err := projection.ParseStatus(q.Get("status"))
	if err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return devicestore.Snapshot{}, projection.View{}, false
	}
	onlyUnread := false
	if raw := q.Get("unread"); raw != "" {
		if onlyUnread, err = strconv.ParseBool(raw); err != nil {
			server.BadRequest(w, "unread must be a boolean", r.URL.Path)
			return devicestore.Snapshot{}, projection.View{}, false
		}
	}
	f := projection.Filter{
		Status:     status,
		Search:     q.Get("q"),
		Group:      strings.TrimSpace(q.Get("group")),
		OnlyUnread: onlyUnread,
	}

	var groups []models.GroupWithMembers
	if f.Group != "" {
		g, err := p.lookupGroup(r, f.Group)
		if err != nil {
			p.logger.Warn("group lookup failed", zap.String("group", f.Group), zap.Error(err))
			server.WriteError(w, r, err)
			return devicestore.Snapshot{}, projection.View{}, false
		}
		if g != nil {
			groups = append(groups, *g)
		}
	}

	snap := p.store.Snapshot()
	return snap, projection.Project(snap.Devices, p.alertState(), snap.CredentialFor, groups, f), true
}

// handleExport writes the filtered device list as CSV.
func (p *Plugin) handleExport(w http.ResponseWriter, r *http.Request) {
	_, view, ok := p.project(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="netdash-devices.csv"`)
	w.WriteHeader(http.StatusOK)
	if err := writeCSV(w, view.Devices); err != nil {
		p.logger.Warn("csv export failed", zap.Error(err))
	}
}

// lookupGroup fetches one group. A group the backend does not know is
// returned as nil without error.
func (p *Plugin) lookupGroup(r *http.Request, name string) (*models.GroupWithMembers, error) {
	if p.groups == nil {
		return nil, nil
	}
	g, err := p.groups.GetGroup(r.Context(), name)
	if err != nil {
		if errors.Is(err, backend.ErrNoRecord) {
			return nil, nil
		}
		if code, ok := backend.StatusCode(err); ok && code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (p *Plugin) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	snap := p.store.Snapshot()
	d, ok := snap.Device(key)
	if !ok {
		server.NotFound(w, "device "+key+" not found", r.URL.Path)
		return
	}
	state := p.alertState()
	devKey := identity.DeviceKey(d)
	alerts := state.Feed(devKey)
	if alerts == nil {
		alerts = []models.AlertItem{}
	}
	detail := deviceDetail{
		Key:    devKey,
		Device: d,
		Icon:   d.Status.Icon(),
		IPs:    identity.DeviceIPs(d),
		Unread: state.UnreadFor(devKey),
		Alerts: alerts,
	}
	if c, ok := snap.CredentialFor(d); ok {
		red := c.Redacted()
		detail.Credential = &red
	}
	writeJSON(w, http.StatusOK, detail)
}

func (p *Plugin) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := p.store.Reload(r.Context())
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(snap))
}

// handleRefresh re-polls one device. Query parameters: ip, method.
func (p *Plugin) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	method := r.URL.Query().Get("method")
	if method == "" {
		method = p.refreshMethod
	}
	d, err := p.store.RefreshOne(r.Context(), ip, method)
	if err != nil {
		p.logger.Warn("device refresh failed", zap.String("ip", ip), zap.Error(err))
		server.WriteError(w, r, err)
		return
	}
	resp := refreshResponse{Inventory: summarize(p.store.Snapshot())}
	if identity.DeviceKey(d) != "" {
		resp.Device = &d
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *Plugin) handleStartProgram(w http.ResponseWriter, r *http.Request) {
	var req programRequest
	if err := readJSON(r, &req); err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if req.Method == "" {
		req.Method = p.refreshMethod
	}
	if err := p.store.StartProgram(r.Context(), req.DeviceInterval, req.MbpsInterval, req.Method); err != nil {
		server.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

func (p *Plugin) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, summarize(p.store.Snapshot()))
}

// handleListCredentials returns the stored credentials with secrets masked.
func (p *Plugin) handleListCredentials(w http.ResponseWriter, _ *http.Request) {
	creds := p.store.Snapshot().Credentials
	out := make([]models.CredentialRecord, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (p *Plugin) handleAddCredential(w http.ResponseWriter, r *http.Request) {
	var cred models.CredentialRecord
	if err := readJSON(r, &cred); err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	if err := p.store.AddCredential(r.Context(), cred); err != nil {
		server.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred.Redacted())
}

func (p *Plugin) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	groups, err := p.groups.GetGroups(r.Context())
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	if groups == nil {
		groups = []models.GroupWithMembers{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (p *Plugin) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	g, err := p.groups.GetGroup(r.Context(), r.PathValue("name"))
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (p *Plugin) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	var req groupRequest
	if err := readJSON(r, &req); err != nil {
		server.BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		server.BadRequest(w, "group name is required", r.URL.Path)
		return
	}
	if err := p.groups.AddGroup(r.Context(), req.Name); err != nil {
		server.WriteError(w, r, err)
		return
	}
	p.logger.Info("group created", zap.String("group", req.Name))
	writeJSON(w, http.StatusCreated, models.GroupWithMembers{Group: req.Name, DeviceMACs: []string{}})
}

// handleAssignMember adds a device to a group. Query parameter: device_mac.
func (p *Plugin) handleAssignMember(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	mac := strings.TrimSpace(r.URL.Query().Get("device_mac"))
	if len(identity.NormalizeMAC(mac)) != macHexDigits {
		server.BadRequest(w, "device_mac must be a valid MAC address", r.URL.Path)
		return
	}
	if err := p.groups.AssignDeviceToGroup(r.Context(), mac, r.PathValue("name")); err != nil {
		server.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	if err := p.groups.RemoveDeviceFromGroup(r.Context(), r.PathValue("mac"), r.PathValue("name")); err != nil {
		server.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if !p.requireGroups(w, r) {
		return
	}
	if err := p.groups.DeleteGroup(r.Context(), r.PathValue("name")); err != nil {
		server.WriteError(w, r, err)
		return
	}
	p.logger.Info("group deleted", zap.String("group", r.PathValue("name")))
	w.WriteHeader(http.StatusNoContent)
}

func (p *Plugin) requireGroups(w http.ResponseWriter, r *http.Request) bool {
	if p.groups == nil {
		server.Unavailable(w, "group backend not configured", r.URL.Path)
		return false
	}
	return true
}

func readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
