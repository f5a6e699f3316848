package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/HerbHall/netdash/internal/normalize"
	"github.com/HerbHall/netdash/pkg/models"
)

// Backend paths.
const (
	pathDevices         = "/devices/get_all"
	pathDevice          = "/devices/get_one_record"
	pathRefreshDevice   = "/devices/refresh_one"
	pathStartProgram    = "/devices/start_program"
	pathCredentials     = "/credentials/connection_details"
	pathCredential      = "/credentials/get_one_cred"
	pathAddCredential   = "/credentials/add_device"
	pathGroups          = "/groups/get_all_groups"
	pathGroup           = "/groups/one_group"
	pathAddGroup        = "/groups/add_group"
	pathAssignDevice    = "/groups/assign_device_to_group"
	pathRemoveDevice    = "/groups/delete_device_from_group"
	pathDeleteGroup     = "/groups/delete_group"
	pathWhiteList       = "/white_list/get_white_list"
	pathAddWhiteList    = "/white_list/add_words"
	pathDeleteWhiteList = "/white_list/delete_words/"
)

// GetDevices fetches and normalizes the full device list.
func (c *Client) GetDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	body, err := c.do(ctx, http.MethodGet, pathDevices, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch devices: %w", err)
	}
	return normalize.Devices(normalize.Decode(body)), nil
}

// GetDevice fetches one device by IP.
func (c *Client) GetDevice(ctx context.Context, ip string) (models.DeviceRecord, error) {
	body, err := c.do(ctx, http.MethodGet, pathDevice, url.Values{"ip": {ip}}, nil)
	if err != nil {
		return models.DeviceRecord{}, fmt.Errorf("fetch device %s: %w", ip, err)
	}
	raw, ok := normalize.Record(normalize.Decode(body))
	if !ok {
		return models.DeviceRecord{}, fmt.Errorf("fetch device %s: %w", ip, ErrNoRecord)
	}
	return normalize.Device(raw), nil
}

// RefreshDevice asks the backend to re-poll one device now.
func (c *Client) RefreshDevice(ctx context.Context, ip string, method Method) error {
	q := url.Values{"ip": {ip}, "method": {string(method)}}
	if _, err := c.do(ctx, http.MethodPost, pathRefreshDevice, q, nil); err != nil {
		return fmt.Errorf("refresh device %s: %w", ip, err)
	}
	return nil
}

// StartProgram schedules recurring polling on the backend. Intervals are
// in the backend's units (seconds).
func (c *Client) StartProgram(ctx context.Context, deviceInterval, mbpsInterval int, method Method) error {
	q := url.Values{
		"device_interval": {strconv.Itoa(deviceInterval)},
		"mbps_interval":   {strconv.Itoa(mbpsInterval)},
		"method":          {string(method)},
	}
	if _, err := c.do(ctx, http.MethodPut, pathStartProgram, q, nil); err != nil {
		return fmt.Errorf("start program: %w", err)
	}
	return nil
}

// GetCredentials fetches and normalizes every stored connection credential.
func (c *Client) GetCredentials(ctx context.Context) ([]models.CredentialRecord, error) {
	body, err := c.do(ctx, http.MethodGet, pathCredentials, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch credentials: %w", err)
	}
	return normalize.Credentials(normalize.Decode(body)), nil
}

// GetCredential fetches the credential stored for one IP.
func (c *Client) GetCredential(ctx context.Context, ip string) (models.CredentialRecord, error) {
	body, err := c.do(ctx, http.MethodGet, pathCredential, url.Values{"ip": {ip}}, nil)
	if err != nil {
		return models.CredentialRecord{}, fmt.Errorf("fetch credential %s: %w", ip, err)
	}
	raw, ok := normalize.Record(normalize.Decode(body))
	if !ok {
		return models.CredentialRecord{}, fmt.Errorf("fetch credential %s: %w", ip, ErrNoRecord)
	}
	return normalize.Credential(raw), nil
}

// AddCredential stores a new device credential on the backend.
func (c *Client) AddCredential(ctx context.Context, cred models.CredentialRecord) error {
	if _, err := c.do(ctx, http.MethodPost, pathAddCredential, nil, cred); err != nil {
		return fmt.Errorf("add credential %s: %w", cred.IP, err)
	}
	return nil
}

// GetGroups fetches every device group with its members.
func (c *Client) GetGroups(ctx context.Context) ([]models.GroupWithMembers, error) {
	body, err := c.do(ctx, http.MethodGet, pathGroups, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}
	return normalize.Groups(normalize.Decode(body)), nil
}

// GetGroup fetches one group by name. A response that omits the group
// name is attributed to the requested one.
func (c *Client) GetGroup(ctx context.Context, name string) (models.GroupWithMembers, error) {
	body, err := c.do(ctx, http.MethodGet, pathGroup, url.Values{"group_name": {name}}, nil)
	if err != nil {
		return models.GroupWithMembers{}, fmt.Errorf("fetch group %s: %w", name, err)
	}
	decoded := normalize.Decode(body)
	if list, ok := decoded.([]any); ok && !containsObject(list) {
		// Bare member list.
		return normalize.Group(normalize.Raw{"group": name, "devices": list}), nil
	}
	raw, ok := normalize.Record(decoded)
	if !ok {
		return models.GroupWithMembers{}, fmt.Errorf("fetch group %s: %w", name, ErrNoRecord)
	}
	g := normalize.Group(raw)
	if g.Group == "" {
		g.Group = name
	}
	return g, nil
}

// AddGroup creates an empty group. The name is sent both as a query
// parameter and in the JSON body.
func (c *Client) AddGroup(ctx context.Context, name string) error {
	body := map[string]string{"group_name": name}
	if _, err := c.do(ctx, http.MethodPost, pathAddGroup, url.Values{"group_name": {name}}, body); err != nil {
		return fmt.Errorf("add group %s: %w", name, err)
	}
	return nil
}

// AssignDeviceToGroup adds a device, by MAC, to a group.
func (c *Client) AssignDeviceToGroup(ctx context.Context, mac, group string) error {
	q := url.Values{"device_mac": {mac}, "group_name": {group}}
	if _, err := c.do(ctx, http.MethodPost, pathAssignDevice, q, nil); err != nil {
		return fmt.Errorf("assign %s to group %s: %w", mac, group, err)
	}
	return nil
}

// RemoveDeviceFromGroup removes a device, by MAC, from a group.
func (c *Client) RemoveDeviceFromGroup(ctx context.Context, mac, group string) error {
	q := url.Values{"device_mac": {mac}, "group_name": {group}}
	if _, err := c.do(ctx, http.MethodDelete, pathRemoveDevice, q, nil); err != nil {
		return fmt.Errorf("remove %s from group %s: %w", mac, group, err)
	}
	return nil
}

// DeleteGroup deletes a group. The backend exposes this as a PUT.
func (c *Client) DeleteGroup(ctx context.Context, name string) error {
	if _, err := c.do(ctx, http.MethodPut, pathDeleteGroup, url.Values{"group_name": {name}}, nil); err != nil {
		return fmt.Errorf("delete group %s: %w", name, err)
	}
	return nil
}

// GetWhiteList fetches the watched configuration words.
func (c *Client) GetWhiteList(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, pathWhiteList, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch white list: %w", err)
	}
	words := normalize.WhiteList(normalize.Decode(body))
	if words == nil {
		words = []string{}
	}
	return words, nil
}

// AddWhiteListWords adds words to the white list. Each word is sent as a
// repeated words query parameter.
func (c *Client) AddWhiteListWords(ctx context.Context, words []string) error {
	if len(words) == 0 {
		return nil
	}
	q := url.Values{"words": words}
	if _, err := c.do(ctx, http.MethodPost, pathAddWhiteList, q, nil); err != nil {
		return fmt.Errorf("add white list words: %w", err)
	}
	return nil
}

// DeleteWhiteListWord removes one word from the white list.
func (c *Client) DeleteWhiteListWord(ctx context.Context, word string) error {
	if _, err := c.do(ctx, http.MethodDelete, pathDeleteWhiteList+url.PathEscape(word), nil, nil); err != nil {
		return fmt.Errorf("delete white list word %q: %w", word, err)
	}
	return nil
}

func containsObject(list []any) bool {
	for _, item := range list {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}
