// Package config wraps viper with nil-safe accessors and holds the netdash
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// NETDASH_BACKEND_BASE_URL for backend.base_url.
const EnvPrefix = "NETDASH"

// Config is a read-only view over a viper tree. A Config built from nil
// answers every lookup with the zero value.
type Config struct {
	v *viper.Viper
}

// New wraps v.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Viper returns the wrapped tree, or an empty one for a nil Config.
func (c *Config) Viper() *viper.Viper {
	if c == nil || c.v == nil {
		return viper.New()
	}
	return c.v
}

func (c *Config) GetString(key string) string {
	if c == nil || c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

func (c *Config) GetFloat64(key string) float64 {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetFloat64(key)
}

func (c *Config) GetBool(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c == nil || c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

func (c *Config) IsSet(key string) bool {
	if c == nil || c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree at key. A missing subtree yields an empty
// Config, never nil.
func (c *Config) Sub(key string) *Config {
	if c == nil || c.v == nil {
		return New(nil)
	}
	return New(c.v.Sub(key))
}

// Unmarshal decodes the whole tree into target using mapstructure tags.
func (c *Config) Unmarshal(target any) error {
	if c == nil || c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}

// SetDefaults registers the netdash defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.timeout", "15s")
	v.SetDefault("backend.rate_limit", 0)
	v.SetDefault("backend.burst", 5)

	v.SetDefault("database.path", "netdash.db")

	v.SetDefault("plugins.inventory.enabled", true)
	v.SetDefault("plugins.inventory.reload_on_start", true)
	v.SetDefault("plugins.inventory.refresh_method", "snmp")

	v.SetDefault("plugins.alerts.enabled", true)
	v.SetDefault("plugins.alerts.stream_url", "")
	v.SetDefault("plugins.alerts.reconnect_delay", "5s")
	v.SetDefault("plugins.alerts.global_cap", 120)
	v.SetDefault("plugins.alerts.device_cap", 40)
	v.SetDefault("plugins.alerts.origin_patterns", []string{})
	v.SetDefault("plugins.alerts.mqtt.broker", "")
	v.SetDefault("plugins.alerts.mqtt.client_id", "netdash")
	v.SetDefault("plugins.alerts.mqtt.topic_prefix", "netdash")
	v.SetDefault("plugins.alerts.mqtt.qos", 0)
}

// Load builds the viper tree from defaults, an optional config file and
// NETDASH_ environment overrides. An empty path searches the working
// directory and /etc/netdash for netdash.yaml and tolerates its absence.
func Load(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName("netdash")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/netdash")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}
