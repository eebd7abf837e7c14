package config

// ServerConfig contains the HTTP API server configuration
type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0"`
}

// TraccarConfig contains the GPS telemetry service configuration
type TraccarConfig struct {
	URL              string `yaml:"url" validate:"required,url"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	ProbeTimeoutMS   int    `yaml:"probeTimeoutMS" validate:"gte=0"`
	RequestTimeoutMS int    `yaml:"requestTimeoutMS" validate:"gte=0"`
}

// SyncConfig contains the sync engine scheduling configuration
type SyncConfig struct {
	TickIntervalMS int `yaml:"tickIntervalMS" validate:"gte=0"`
	RetryDelayMS   int `yaml:"retryDelayMS" validate:"gte=0"`
	MaxRetries     int `yaml:"maxRetries" validate:"gte=0"`
	// DowngradeAfterFailures switches Live to Demo after N consecutive
	// failed ticks. Zero disables the downgrade.
	DowngradeAfterFailures int `yaml:"downgradeAfterFailures" validate:"gte=0"`
	BatchSize              int `yaml:"batchSize" validate:"gte=0,lte=500"`
}

// SimulatorConfig contains the demo-mode simulation feed configuration
type SimulatorConfig struct {
	TickIntervalMS int `yaml:"tickIntervalMS" validate:"gte=0"`
}

// StoreConfig contains the shared real-time store configuration
type StoreConfig struct {
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB" validate:"gte=0"`
}

// DistConfig contains distribution layer limits
type DistConfig struct {
	AllBusesLimit int `yaml:"allBusesLimit" validate:"gte=0"`
}

// EventsConfig contains the optional Kafka location event stream
type EventsConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HistoryConfig contains the optional SQLite tick archive
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server    ServerConfig    `yaml:"server" validate:"required"`
	Traccar   TraccarConfig   `yaml:"traccar" validate:"required"`
	Sync      SyncConfig      `yaml:"sync"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Store     StoreConfig     `yaml:"store"`
	Dist      DistConfig      `yaml:"dist"`
	Events    EventsConfig    `yaml:"events"`
	History   HistoryConfig   `yaml:"history"`
}
