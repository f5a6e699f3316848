package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered plugins.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	order    []string
	disabled map[string]string
	logger   *zap.Logger
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		plugins:  make(map[string]Plugin),
		disabled: make(map[string]string),
		logger:   logger,
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin has empty name")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	r.order = append(r.order, name)
	r.logger.Info("plugin registered", zap.String("name", name), zap.String("version", p.Version()))
	return nil
}

// Validate orders plugins so dependencies start first. A plugin whose
// dependency is missing or disabled is disabled too; a dependency cycle
// is an error.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(r.order))
	sorted := make([]string, 0, len(r.order))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fmt.Errorf("plugin dependency cycle: %v", append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range dependenciesOf(r.plugins[name]) {
			if _, ok := r.plugins[dep]; !ok {
				r.disable(name, fmt.Sprintf("missing dependency %q", dep))
				continue
			}
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
			if _, off := r.disabled[dep]; off {
				r.disable(name, fmt.Sprintf("dependency %q disabled", dep))
			}
		}
		state[name] = done
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range r.order {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	r.order = sorted
	return nil
}

// disable marks a plugin as skipped. r.mu must be held.
func (r *Registry) disable(name, reason string) {
	if _, ok := r.disabled[name]; ok {
		return
	}
	r.disabled[name] = reason
	r.logger.Warn("plugin disabled", zap.String("name", name), zap.String("reason", reason))
}

// IsDisabled reports whether a plugin was disabled by config, dependency
// validation or a failed Init.
func (r *Registry) IsDisabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.disabled[name]
	return ok
}

// InitAll initializes all registered plugins with their configuration.
// A plugin is skipped when plugins.<name>.enabled is false.
func (r *Registry) InitAll(config *viper.Viper) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if config == nil {
		config = viper.New()
	}
	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		for _, dep := range dependenciesOf(r.plugins[name]) {
			if _, off := r.disabled[dep]; off {
				r.disable(name, fmt.Sprintf("dependency %q disabled", dep))
			}
		}
		if _, off := r.disabled[name]; off {
			continue
		}

		key := "plugins." + name + ".enabled"
		if config.IsSet(key) && !config.GetBool(key) {
			r.disable(name, "disabled by configuration")
			continue
		}

		pluginConfig := config.Sub("plugins." + name)
		if pluginConfig == nil {
			pluginConfig = viper.New()
		}

		p := r.plugins[name]
		r.logger.Info("initializing plugin", zap.String("name", name))
		if err := p.Init(pluginConfig, r.logger.Named(name)); err != nil {
			return fmt.Errorf("failed to initialize plugin %q: %w", name, err)
		}
		if v, ok := p.(Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				return fmt.Errorf("invalid configuration for plugin %q: %w", name, err)
			}
		}
	}
	return nil
}

// StartAll starts all enabled plugins in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := r.plugins[name].Start(ctx); err != nil {
			return fmt.Errorf("failed to start plugin %q: %w", name, err)
		}
	}
	return nil
}

// StopAll stops all enabled plugins in reverse order.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if _, off := r.disabled[name]; off {
			continue
		}
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := r.plugins[name].Stop(); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns all registered plugins in start order.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// AllRoutes returns the routes of every enabled plugin.
func (r *Registry) AllRoutes() map[string][]Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]Route)
	for _, name := range r.order {
		if _, off := r.disabled[name]; off {
			continue
		}
		if pr := r.plugins[name].Routes(); len(pr) > 0 {
			routes[name] = pr
		}
	}
	return routes
}

// Health collects HealthChecker reports. Disabled plugins report down with
// the reason; plugins without a checker report ok.
func (r *Registry) Health(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]HealthStatus, len(r.order))
	for _, name := range r.order {
		if reason, off := r.disabled[name]; off {
			out[name] = HealthStatus{Status: HealthDown, Message: reason}
			continue
		}
		if hc, ok := r.plugins[name].(HealthChecker); ok {
			out[name] = hc.Health(ctx)
			continue
		}
		out[name] = HealthStatus{Status: HealthOK}
	}
	return out
}

func dependenciesOf(p Plugin) []string {
	if d, ok := p.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}
