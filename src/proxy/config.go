package proxy

import (
	"time"

	"github.com/onemorebsmith/stratum-proxy/src/common"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"github.com/pkg/errors"
)

const (
	Version         = "v0.1.0"
	defaultAgent    = "stratum-proxy/" + Version
	TickInterval    = 60 * time.Second
	defaultBind     = ":3333"
	defaultPruneGap = 10 * time.Minute
)

type ProxyConfig struct {
	Bind            []string              `yaml:"bind"`
	Pools           []upstream.PoolConfig `yaml:"pools"`
	Agent           string                `yaml:"agent"`
	Verbose         bool                  `yaml:"verbose"`
	Debug           bool                  `yaml:"debug"`
	PromPort        string                `yaml:"prom_port"`
	HealthCheckPort string                `yaml:"health_check_port"`

	Retries       int           `yaml:"retries"`
	RetryPause    time.Duration `yaml:"retry_pause"`
	ResultTimeout time.Duration `yaml:"result_timeout"`
	MaxMappers    int           `yaml:"max_mappers"`

	RedisConfig    string        `yaml:"redis"`
	PostgresConfig string        `yaml:"postgres"`
	ShareRetention time.Duration `yaml:"share_retention"` // 0 keeps shares forever

	Log common.LogConfig `yaml:",inline"`
}

// Validate fills defaults and rejects configs the proxy cannot run with.
func (cfg *ProxyConfig) Validate() error {
	if len(cfg.Pools) == 0 {
		return errors.New("no pools configured")
	}
	for i, pool := range cfg.Pools {
		if pool.Address() == "" {
			return errors.Errorf("pool #%d has no url", i)
		}
	}
	if len(cfg.Bind) == 0 {
		cfg.Bind = []string{defaultBind}
	}
	if cfg.Agent == "" {
		cfg.Agent = defaultAgent
	}
	if cfg.MaxMappers < 0 {
		return errors.Errorf("max_mappers must not be negative, got %d", cfg.MaxMappers)
	}
	return nil
}

func (cfg ProxyConfig) upstreamConfig() upstream.Config {
	return upstream.Config{
		Pools:      cfg.Pools,
		Agent:      cfg.Agent,
		Retries:    cfg.Retries,
		RetryPause: cfg.RetryPause,
	}
}
