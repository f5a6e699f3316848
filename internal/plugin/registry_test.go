package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// testPlugin is a minimal plugin for testing.
type testPlugin struct {
	name     string
	deps     []string
	initErr  error
	started  *[]string
	stopped  *[]string
	initCfg  *viper.Viper
	routes   []Route
	health   *HealthStatus
	validErr error
}

func newTestPlugin(name string, deps ...string) *testPlugin {
	return &testPlugin{name: name, deps: deps}
}

func (p *testPlugin) Name() string           { return p.name }
func (p *testPlugin) Version() string        { return "1.0.0" }
func (p *testPlugin) Dependencies() []string { return p.deps }
func (p *testPlugin) Routes() []Route        { return p.routes }

func (p *testPlugin) Init(cfg *viper.Viper, _ *zap.Logger) error {
	p.initCfg = cfg
	return p.initErr
}

func (p *testPlugin) Start(_ context.Context) error {
	if p.started != nil {
		*p.started = append(*p.started, p.name)
	}
	return nil
}

func (p *testPlugin) Stop() error {
	if p.stopped != nil {
		*p.stopped = append(*p.stopped, p.name)
	}
	return nil
}

// checkedPlugin adds HealthChecker and Validator.
type checkedPlugin struct {
	*testPlugin
}

func (p checkedPlugin) Health(context.Context) HealthStatus { return *p.health }
func (p checkedPlugin) ValidateConfig() error               { return p.validErr }

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func names(ps []Plugin) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name()
	}
	return out
}

func TestRegister(t *testing.T) {
	reg := NewRegistry(testLogger())

	p := newTestPlugin("alpha")
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Duplicate registration should fail.
	if err := reg.Register(p); err == nil {
		t.Fatal("Register() expected error for duplicate, got nil")
	}
}

func TestRegisterEmptyName(t *testing.T) {
	reg := NewRegistry(testLogger())
	if err := reg.Register(newTestPlugin("")); err == nil {
		t.Fatal("Register() expected error for empty name, got nil")
	}
}

func TestValidateWithDeps(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(newTestPlugin("alerts", "inventory"))
	reg.Register(newTestPlugin("inventory"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	got := names(reg.All())
	if len(got) != 2 || got[0] != "inventory" || got[1] != "alerts" {
		t.Errorf("All() = %v, want [inventory alerts]", got)
	}
}

func TestValidateCycleDetection(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(newTestPlugin("a", "b"))
	reg.Register(newTestPlugin("b", "a"))

	if err := reg.Validate(); err == nil {
		t.Fatal("Validate() expected cycle error, got nil")
	}
}

func TestValidateDisablesMissingDep(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(newTestPlugin("a", "missing"))
	reg.Register(newTestPlugin("b", "a"))

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !reg.IsDisabled("a") {
		t.Error("expected plugin 'a' to be disabled")
	}
	if !reg.IsDisabled("b") {
		t.Error("expected 'b' to be cascade disabled")
	}
}

func TestInitAllPassesSubtree(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := newTestPlugin("inventory")
	reg.Register(p)
	reg.Validate()

	cfg := viper.New()
	cfg.Set("plugins.inventory.refresh_method", "cli")
	if err := reg.InitAll(cfg); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if got := p.initCfg.GetString("refresh_method"); got != "cli" {
		t.Errorf("plugin config refresh_method = %q, want cli", got)
	}
}

func TestInitAllNoSubtree(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := newTestPlugin("alerts")
	reg.Register(p)

	if err := reg.InitAll(nil); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if p.initCfg == nil {
		t.Fatal("plugin received nil config, want empty viper")
	}
}

func TestInitAllDisabledByConfig(t *testing.T) {
	reg := NewRegistry(testLogger())
	var started []string
	a := newTestPlugin("inventory")
	a.started = &started
	b := newTestPlugin("alerts", "inventory")
	b.started = &started
	reg.Register(a)
	reg.Register(b)
	reg.Validate()

	cfg := viper.New()
	cfg.Set("plugins.inventory.enabled", false)
	if err := reg.InitAll(cfg); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if !reg.IsDisabled("inventory") || !reg.IsDisabled("alerts") {
		t.Error("expected inventory and its dependent to be disabled")
	}
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if len(started) != 0 {
		t.Errorf("started = %v, want none", started)
	}
}

func TestInitAllFails(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := newTestPlugin("a")
	p.initErr = errors.New("init failed")
	reg.Register(p)

	if err := reg.InitAll(viper.New()); err == nil {
		t.Fatal("InitAll() expected error, got nil")
	}
}

func TestInitAllValidator(t *testing.T) {
	reg := NewRegistry(testLogger())
	p := checkedPlugin{newTestPlugin("a")}
	p.validErr = errors.New("bad broker url")
	reg.Register(p)

	if err := reg.InitAll(viper.New()); err == nil {
		t.Fatal("InitAll() expected validation error, got nil")
	}
}

func TestStartAllStopAllOrder(t *testing.T) {
	reg := NewRegistry(testLogger())
	var started, stopped []string
	for _, p := range []*testPlugin{newTestPlugin("alerts", "inventory"), newTestPlugin("inventory")} {
		p.started = &started
		p.stopped = &stopped
		reg.Register(p)
	}
	reg.Validate()
	reg.InitAll(viper.New())

	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	reg.StopAll()

	if len(started) != 2 || started[0] != "inventory" {
		t.Errorf("started = %v, want inventory first", started)
	}
	if len(stopped) != 2 || stopped[0] != "alerts" {
		t.Errorf("stopped = %v, want alerts first", stopped)
	}
}

func TestGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(newTestPlugin("a"))

	if _, ok := reg.Get("a"); !ok {
		t.Error("Get('a') returned false, want true")
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Error("Get('nonexistent') returned true, want false")
	}
}

func TestAllRoutes(t *testing.T) {
	reg := NewRegistry(testLogger())

	web := newTestPlugin("web")
	web.routes = []Route{{Method: "GET", Path: "/test"}}
	off := newTestPlugin("off", "missing")
	off.routes = []Route{{Method: "GET", Path: "/hidden"}}
	reg.Register(web)
	reg.Register(newTestPlugin("noroutes"))
	reg.Register(off)
	reg.Validate()

	routes := reg.AllRoutes()
	if len(routes) != 1 {
		t.Fatalf("AllRoutes() returned %d plugin route sets, want 1", len(routes))
	}
	if _, ok := routes["web"]; !ok {
		t.Error("AllRoutes() missing 'web' routes")
	}
}

func TestHealth(t *testing.T) {
	reg := NewRegistry(testLogger())
	checked := checkedPlugin{newTestPlugin("alerts")}
	checked.health = &HealthStatus{Status: HealthDegraded, Message: "stream reconnecting"}
	reg.Register(checked)
	reg.Register(newTestPlugin("plain"))
	reg.Register(newTestPlugin("orphan", "missing"))
	reg.Validate()

	got := reg.Health(context.Background())
	tests := []struct {
		name string
		want string
	}{
		{"alerts", HealthDegraded},
		{"plain", HealthOK},
		{"orphan", HealthDown},
	}
	for _, tt := range tests {
		if got[tt.name].Status != tt.want {
			t.Errorf("Health()[%q].Status = %q, want %q", tt.name, got[tt.name].Status, tt.want)
		}
	}
}
