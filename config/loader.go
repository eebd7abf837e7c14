package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads, validates and applies defaults to the application
// configuration. Credentials and the store address may be overridden from
// the environment so they stay out of the config file.
func Load(path string) (*AppConfig, error) {
	paths := []string{path}
	if path == "" {
		paths = []string{"config.yml", "./deploy/config.yml"}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Events.Enabled && (len(cfg.Events.Brokers) == 0 || cfg.Events.Topic == "") {
		return nil, fmt.Errorf("validate config: events enabled but brokers/topic missing")
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return nil, fmt.Errorf("validate config: history enabled but path missing")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) {
	cfg.Traccar.URL = getEnv("TRACCAR_URL", cfg.Traccar.URL)
	cfg.Traccar.Username = getEnv("TRACCAR_USERNAME", cfg.Traccar.Username)
	cfg.Traccar.Password = getEnv("TRACCAR_PASSWORD", cfg.Traccar.Password)
	cfg.Store.RedisAddr = getEnv("REDIS_ADDR", cfg.Store.RedisAddr)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 16180
	}
	if cfg.Traccar.ProbeTimeoutMS == 0 {
		cfg.Traccar.ProbeTimeoutMS = 10000
	}
	if cfg.Sync.TickIntervalMS == 0 {
		cfg.Sync.TickIntervalMS = 10000
	}
	// Fetches inside a tick are bounded by the tick interval so a slow
	// call cannot outlive the data that would supersede it.
	if cfg.Traccar.RequestTimeoutMS == 0 {
		cfg.Traccar.RequestTimeoutMS = cfg.Sync.TickIntervalMS
	}
	if cfg.Sync.RetryDelayMS == 0 {
		cfg.Sync.RetryDelayMS = 30000
	}
	if cfg.Sync.MaxRetries == 0 {
		cfg.Sync.MaxRetries = 5
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 500
	}
	if cfg.Simulator.TickIntervalMS == 0 {
		cfg.Simulator.TickIntervalMS = 5000
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Dist.AllBusesLimit == 0 {
		cfg.Dist.AllBusesLimit = 100
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
