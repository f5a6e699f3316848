// Package devicestore owns the authoritative in-memory device and
// credential collections. State is published as immutable Snapshot values;
// every mutation replaces the whole snapshot.
package devicestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/netdash/internal/backend"
	"github.com/HerbHall/netdash/internal/identity"
	"github.com/HerbHall/netdash/pkg/models"
)

// Backend is the subset of the backend client the store depends on.
type Backend interface {
	GetDevices(ctx context.Context) ([]models.DeviceRecord, error)
	GetDevice(ctx context.Context, ip string) (models.DeviceRecord, error)
	RefreshDevice(ctx context.Context, ip string, method backend.Method) error
	StartProgram(ctx context.Context, deviceInterval, mbpsInterval int, method backend.Method) error
	GetCredentials(ctx context.Context) ([]models.CredentialRecord, error)
	AddCredential(ctx context.Context, cred models.CredentialRecord) error
}

// Snapshot is one immutable view of the store. Slices must not be
// modified by callers.
type Snapshot struct {
	Version       uint64                    `json:"version"`
	Devices       []models.DeviceRecord     `json:"devices"`
	Credentials   []models.CredentialRecord `json:"-"`
	UsingFallback bool                      `json:"using_fallback"`
	Message       string                    `json:"message"`
	LoadedAt      time.Time                 `json:"loaded_at"`
}

// Device returns the device with the given key.
func (s Snapshot) Device(key string) (models.DeviceRecord, bool) {
	key = identity.NormalizeKey(key)
	if key == "" {
		return models.DeviceRecord{}, false
	}
	for _, d := range s.Devices {
		if identity.DeviceKey(d) == key {
			return d, true
		}
	}
	return models.DeviceRecord{}, false
}

// CredentialFor returns the credential whose normalized IP equals any of
// the device's addresses.
func (s Snapshot) CredentialFor(d models.DeviceRecord) (models.CredentialRecord, bool) {
	ips := identity.DeviceIPs(d)
	for _, c := range s.Credentials {
		cip := identity.NormalizeIP(c.IP)
		if identity.IsSentinelIP(cip) {
			continue
		}
		for _, ip := range ips {
			if ip == cip {
				return c, true
			}
		}
	}
	return models.CredentialRecord{}, false
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithFallback replaces the bundled fallback dataset.
func WithFallback(ds Dataset) Option {
	return func(s *Store) {
		s.fallback = func() (Dataset, error) { return ds, nil }
	}
}

// Store holds the device and credential collections.
type Store struct {
	backend  Backend
	logger   *zap.Logger
	now      func() time.Time
	fallback func() (Dataset, error)

	mu     sync.Mutex
	snap   Snapshot
	closed bool

	// notifyMu serializes updates so listeners see snapshots in order.
	notifyMu  sync.Mutex
	listeners map[int]func(Snapshot)
	nextID    int
}

// New creates a Store with an empty, unloaded snapshot.
func New(b Backend, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:   b,
		logger:    logger,
		now:       time.Now,
		fallback:  BundledDataset,
		listeners: make(map[int]func(Snapshot)),
		snap: Snapshot{
			Devices:     []models.DeviceRecord{},
			Credentials: []models.CredentialRecord{},
			Message:     "Device inventory not loaded yet",
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn to receive every snapshot published after the
// call. fn runs synchronously and may read the store but must not mutate
// it. The returned function removes the listener.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close stops the store from publishing. Operations already in flight
// finish their network calls but their results are dropped.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]func(Snapshot))
	s.mu.Unlock()
}

// update applies fn to the current snapshot under the lock and publishes
// the result. fn returns false to leave the state untouched.
func (s *Store) update(fn func(cur Snapshot) (Snapshot, bool)) (Snapshot, error) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	cur := s.snap
	next, ok := fn(cur)
	if !ok {
		s.mu.Unlock()
		return cur, nil
	}
	next.Version = cur.Version + 1
	s.snap = next
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next, nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reload fetches devices and credentials concurrently. When either fetch
// fails or comes back empty, both lists are replaced by the fallback
// dataset; real and fallback lists are never mixed. A reload whose ctx
// ends before the fetches finish leaves the state untouched and returns
// ctx.Err(). Otherwise the only error is ErrClosed.
func (s *Store) Reload(ctx context.Context) (Snapshot, error) {
	if s.isClosed() {
		return Snapshot{}, ErrClosed
	}

	var (
		devices []models.DeviceRecord
		creds   []models.CredentialRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.backend.GetDevices(gctx)
		if err != nil {
			return err
		}
		if len(d) == 0 {
			return errNoDevices
		}
		devices = d
		return nil
	})
	g.Go(func() error {
		c, err := s.backend.GetCredentials(gctx)
		if err != nil {
			return err
		}
		if len(c) == 0 {
			return errNoCredentials
		}
		creds = c
		return nil
	})

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Debug("device reload abandoned", zap.Error(ctxErr))
			return Snapshot{}, ctxErr
		}
		return s.loadFallback(err)
	}

	devices = dedupe(devices)
	snap, err := s.update(func(Snapshot) (Snapshot, bool) {
		return Snapshot{
			Devices:     devices,
			Credentials: creds,
			Message:     fmt.Sprintf("Loaded %d devices and %d credentials from the backend", len(devices), len(creds)),
			LoadedAt:    s.now(),
		}, true
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Info("device inventory loaded",
		zap.Int("devices", len(devices)),
		zap.Int("credentials", len(creds)),
		zap.Uint64("version", snap.Version),
	)
	return snap, nil
}

func (s *Store) loadFallback(cause error) (Snapshot, error) {
	ds, err := s.fallback()
	if err != nil {
		s.logger.Error("fallback dataset unavailable", zap.Error(err))
	}
	devices := ds.Devices
	if devices == nil {
		devices = []models.DeviceRecord{}
	}
	creds := ds.Credentials
	if creds == nil {
		creds = []models.CredentialRecord{}
	}

	msg := fmt.Sprintf("Backend unavailable (%v); showing fallback data", cause)
	snap, err := s.update(func(Snapshot) (Snapshot, bool) {
		return Snapshot{
			Devices:       devices,
			Credentials:   creds,
			UsingFallback: true,
			Message:       msg,
			LoadedAt:      s.now(),
		}, true
	})
	if err != nil {
		return Snapshot{}, err
	}
	s.logger.Warn("device inventory degraded to fallback data",
		zap.Error(cause),
		zap.Int("devices", len(devices)),
	)
	return snap, nil
}

// RefreshOne asks the backend to re-poll one device and merges the result.
// The device is re-fetched by IP and replaced by identity (IP or MAC), or
// appended when new. If the single fetch fails the whole list is
// re-fetched instead. On any failure the collection is left untouched, and
// a result that lands after a reload fell back is dropped with
// ErrFallbackMode.
func (s *Store) RefreshOne(ctx context.Context, ip, method string) (models.DeviceRecord, error) {
	m, ok := backend.ParseMethod(method)
	if !ok {
		return models.DeviceRecord{}, ErrInvalidMethod
	}
	target := identity.NormalizeIP(ip)
	if identity.IsSentinelIP(target) {
		return models.DeviceRecord{}, ErrInvalidIP
	}
	if err := s.checkLive(); err != nil {
		return models.DeviceRecord{}, err
	}

	if err := s.backend.RefreshDevice(ctx, target, m); err != nil {
		return models.DeviceRecord{}, err
	}

	fetched, oneErr := s.backend.GetDevice(ctx, target)
	if oneErr == nil {
		fellBack := false
		if _, err := s.update(func(cur Snapshot) (Snapshot, bool) {
			if cur.UsingFallback {
				fellBack = true
				return cur, false
			}
			next := cur
			next.Devices = mergeDevice(cur.Devices, fetched, target)
			next.LoadedAt = s.now()
			return next, true
		}); err != nil {
			return models.DeviceRecord{}, err
		}
		if fellBack {
			return models.DeviceRecord{}, ErrFallbackMode
		}
		s.logger.Info("device refreshed",
			zap.String("ip", target),
			zap.String("method", string(m)),
			zap.String("hostname", fetched.Hostname),
		)
		return fetched, nil
	}

	s.logger.Warn("single device fetch failed, re-fetching device list",
		zap.String("ip", target),
		zap.Error(oneErr),
	)
	all, allErr := s.backend.GetDevices(ctx)
	if allErr == nil && len(all) == 0 {
		allErr = errNoDevices
	}
	if allErr != nil {
		return models.DeviceRecord{}, fmt.Errorf("refresh %s: %w", target, errors.Join(oneErr, allErr))
	}

	all = dedupe(all)
	fellBack := false
	if _, err := s.update(func(cur Snapshot) (Snapshot, bool) {
		// A reload that fell back meanwhile owns both lists.
		if cur.UsingFallback {
			fellBack = true
			return cur, false
		}
		next := cur
		next.Devices = all
		next.LoadedAt = s.now()
		return next, true
	}); err != nil {
		return models.DeviceRecord{}, err
	}
	if fellBack {
		return models.DeviceRecord{}, ErrFallbackMode
	}

	for _, d := range all {
		if matchesIP(d, target) {
			return d, nil
		}
	}
	return models.DeviceRecord{}, nil
}

// StartProgram schedules recurring backend polling.
func (s *Store) StartProgram(ctx context.Context, deviceInterval, mbpsInterval int, method string) error {
	m, ok := backend.ParseMethod(method)
	if !ok {
		return ErrInvalidMethod
	}
	if deviceInterval <= 0 || mbpsInterval <= 0 {
		return ErrInvalidInterval
	}
	if err := s.checkLive(); err != nil {
		return err
	}
	if err := s.backend.StartProgram(ctx, deviceInterval, mbpsInterval, m); err != nil {
		return err
	}
	s.logger.Info("polling program started",
		zap.Int("device_interval", deviceInterval),
		zap.Int("mbps_interval", mbpsInterval),
		zap.String("method", string(m)),
	)
	return nil
}

// AddCredential stores a credential on the backend, then reloads the
// credential list into a new snapshot.
func (s *Store) AddCredential(ctx context.Context, cred models.CredentialRecord) error {
	if identity.IsSentinelIP(identity.NormalizeIP(cred.IP)) {
		return ErrInvalidIP
	}
	if err := s.checkLive(); err != nil {
		return err
	}
	if err := s.backend.AddCredential(ctx, cred); err != nil {
		return err
	}

	creds, err := s.backend.GetCredentials(ctx)
	if err != nil {
		s.logger.Warn("credential saved but list reload failed", zap.Error(err))
		return nil
	}
	_, err = s.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.UsingFallback {
			return cur, false
		}
		next := cur
		next.Credentials = creds
		return next, true
	})
	return err
}

// checkLive rejects backend actions while the store is closed or showing
// fallback data.
func (s *Store) checkLive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.snap.UsingFallback {
		return ErrFallbackMode
	}
	return nil
}

// mergeDevice returns a new slice where the first device matching d by
// primary IP or MAC, or owning the requested IP, is replaced by d. Later
// records of the same device are dropped. When nothing matches d is
// appended.
func mergeDevice(devices []models.DeviceRecord, d models.DeviceRecord, requestedIP string) []models.DeviceRecord {
	out := make([]models.DeviceRecord, 0, len(devices)+1)
	merged := false
	for _, existing := range devices {
		switch {
		case !merged && (identity.SameDevice(existing, d) || matchesIP(existing, requestedIP)):
			out = append(out, d)
			merged = true
		case merged && identity.SameDevice(existing, d):
			// stale record of the refreshed device
		default:
			out = append(out, existing)
		}
	}
	if !merged {
		out = append(out, d)
	}
	return out
}

func matchesIP(d models.DeviceRecord, ip string) bool {
	return ip != "" && identity.NormalizeIP(d.PrimaryIP) == ip
}

// dedupe collapses records sharing a device key. The last record wins and
// takes the position of the first. Records without a key are kept as is.
func dedupe(devices []models.DeviceRecord) []models.DeviceRecord {
	pos := make(map[string]int, len(devices))
	out := make([]models.DeviceRecord, 0, len(devices))
	for _, d := range devices {
		key := identity.DeviceKey(d)
		if key == "" {
			out = append(out, d)
			continue
		}
		if i, dup := pos[key]; dup {
			out[i] = d
			continue
		}
		pos[key] = len(out)
		out = append(out, d)
	}
	return out
}
