package upstream

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultRetries    = 5
	DefaultRetryPause = 5 * time.Second
	keepaliveInterval = 60 * time.Second
	dialTimeout       = 20 * time.Second
	readTimeout       = 10 * time.Minute
)

type PoolConfig struct {
	URL       string `yaml:"url"`
	User      string `yaml:"user"`
	Password  string `yaml:"pass"`
	RigID     string `yaml:"rig_id"`
	Keepalive bool   `yaml:"keepalive"`
}

// Address strips any stratum scheme prefix from the pool url.
func (pc PoolConfig) Address() string {
	addr := pc.URL
	if idx := strings.Index(addr, "://"); idx >= 0 {
		addr = addr[idx+3:]
	}
	return strings.TrimSuffix(addr, "/")
}

type Config struct {
	Pools      []PoolConfig
	Agent      string
	Retries    int
	RetryPause time.Duration
	Executor   Executor
	Logger     *zap.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = DefaultRetryPause
	}
	if cfg.Executor == nil {
		cfg.Executor = Inline
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return cfg
}
