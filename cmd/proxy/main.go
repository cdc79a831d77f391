package main

import (
	"flag"
	"io/ioutil"
	"log"
	"os"
	"path"
	"strings"

	"github.com/onemorebsmith/stratum-proxy/src/proxy"
	"github.com/onemorebsmith/stratum-proxy/src/upstream"
	"gopkg.in/yaml.v2"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := ioutil.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := proxy.ProxyConfig{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.Func("bind", "comma separated addresses to accept miners on, default `:3333`", func(v string) error {
		cfg.Bind = strings.Split(v, ",")
		return nil
	})
	var poolURL, poolUser, poolPass string
	flag.StringVar(&poolURL, "pool", "", "single pool url, replaces the configured pools")
	flag.StringVar(&poolUser, "user", "", "login used with -pool")
	flag.StringVar(&poolPass, "pass", "x", "password used with -pool")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres share log`)
	flag.StringVar(&cfg.RedisConfig, "redis", cfg.RedisConfig, `address of the redis share log`)
	flag.StringVar(&cfg.Log.File, "log", cfg.Log.File, `rotating log file, console only when empty`)
	flag.IntVar(&cfg.MaxMappers, "max-mappers", cfg.MaxMappers, "upper bound on upstream connections, 0 for unlimited")
	flag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "log every share and miner")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging")

	flag.Parse()

	if poolURL != "" {
		cfg.Pools = []upstream.PoolConfig{{URL: poolURL, User: poolUser, Password: poolPass}}
	}

	log.Println("----------------------------------")
	log.Printf("initializing proxy %s", proxy.Version)
	log.Printf("\tbind:          %s", strings.Join(cfg.Bind, ", "))
	for i, pool := range cfg.Pools {
		log.Printf("\tpool #%d:       %s", i+1, pool.Address())
	}
	log.Printf("\tmax mappers:   %d", cfg.MaxMappers)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tredis:         %s", cfg.RedisConfig)
	log.Printf("\tlog file:      %s", cfg.Log.File)
	log.Println("----------------------------------")

	if err := proxy.ListenAndServe(cfg); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
