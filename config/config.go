package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is the static, bootstrap-time configuration read once at process
// start — where the SQLite database lives, what port the HTTP server
// binds, and the rate limiter's quotas. This is deliberately distinct from
// pkg/configstore.Settings, the dynamic, DB-backed, control-API-facing
// configuration that can change without a restart.
type Config struct {
	Storage   Storage   `json:"storage" yaml:"storage" mapstructure:"storage"`
	Server    Server    `json:"server" yaml:"server" mapstructure:"server"`
	RateLimit RateLimit `json:"rateLimit" yaml:"rateLimit" mapstructure:"rateLimit"`
}

// Storage configuration is assumed to be for sqlite database only currently
type Storage struct {
	FilePath string `json:"filePath" yaml:"filePath" mapstructure:"filePath"`
}

type Server struct {
	Port int `json:"port" yaml:"port" mapstructure:"port"`
}

// RateLimit selects and sizes the rate limiter built at startup. Disabled
// picks ratelimit.Disabled instead of ratelimit.SQLiteLimiter, a one-line
// swap at construction per the spec's own suggested resolution.
type RateLimit struct {
	Disabled bool `json:"disabled" yaml:"disabled" mapstructure:"disabled"`

	GlobalLimit  int           `json:"globalLimit" yaml:"globalLimit" mapstructure:"globalLimit"`
	GlobalPeriod time.Duration `json:"globalPeriod" yaml:"globalPeriod" mapstructure:"globalPeriod"`

	FallbackLimit  int           `json:"fallbackLimit" yaml:"fallbackLimit" mapstructure:"fallbackLimit"`
	FallbackPeriod time.Duration `json:"fallbackPeriod" yaml:"fallbackPeriod" mapstructure:"fallbackPeriod"`

	// PerProvider overrides the global quota for a named provider; an
	// absent entry means unlimited, per spec.md §4.2.
	PerProvider map[string]ProviderQuota `json:"perProvider" yaml:"perProvider" mapstructure:"perProvider"`
}

type ProviderQuota struct {
	Limit  int           `json:"limit" yaml:"limit" mapstructure:"limit"`
	Period time.Duration `json:"period" yaml:"period" mapstructure:"period"`
}

type ConfigUnmarshaler interface {
	ReadInConfig() error
	Unmarshal(any, ...viper.DecoderConfigOption) error
	ConfigFileUsed() string
}

// New reads a new configuration
func New(cu ConfigUnmarshaler) (Config, error) {
	var c Config

	if cu.ConfigFileUsed() != "" {
		err := cu.ReadInConfig()
		if err != nil {
			return c, err
		}
	}

	err := cu.Unmarshal(&c)
	return c, err
}
