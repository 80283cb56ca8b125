// Package config loads the CSMS's configuration tree: instance identity,
// WebSocket server tuning, the event bus, OCPP/background-loop timing,
// Basic-Auth and TLS, plus the optional Redis and Kafka bridges. Adapted
// from the teacher's Spring-Boot-style viper loader (application.yaml +
// application-{profile}.yaml + environment override), trimmed of the
// gateway-specific cache/router sections and grown with OCPP/tariff
// sections this CSMS needs that the gateway never did.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration tree, one struct per concern.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	InstanceID string           `mapstructure:"instance_id"`
	Server     ServerConfig     `mapstructure:"server"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Log        LogConfig        `mapstructure:"log"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	OCPP       OCPPConfig       `mapstructure:"ocpp"`
	Security   SecurityConfig   `mapstructure:"security"`
	Tariff     TariffConfig     `mapstructure:"tariff"`
}

// AppConfig carries basic application identity.
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// ServerConfig is the HTTP/WebSocket listener.
type ServerConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	WebSocketPath string `mapstructure:"websocket_path"`
}

// WebSocketConfig tunes the per-connection transport (spec §4.2).
type WebSocketConfig struct {
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// RedisConfig backs the optional connection->instance routing cache
// (spec ambient stack's HA placeholder; core only writes/reads the port).
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ConnTTL      time.Duration `mapstructure:"conn_ttl"`
	Enabled      bool          `mapstructure:"enabled"`
}

// KafkaConfig backs the optional event-bus bridge to external consumers.
type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig holds sarama producer settings for the Kafka bridge.
// eventbus.NewKafkaBridge does not take them; it sets its own producer
// options.
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccess  bool          `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// LogConfig controls the zerolog sink (internal/logger).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// EventBusConfig holds a per-subscriber buffer size setting for the
// in-process broadcast bus. eventbus.New does not take it: every
// subscriber buffer is eventbus.Capacity (1024) (spec §4.6/§9: bounded,
// lag-tolerant fan-out).
type EventBusConfig struct {
	SubscriberBufferSize int `mapstructure:"subscriber_buffer_size"`
}

// DefaultEventBusConfig returns this config section's default buffer
// size setting.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{SubscriberBufferSize: 256}
}

// MonitoringConfig exposes metrics/health endpoints.
type MonitoringConfig struct {
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// OCPPConfig tunes protocol-level and background-loop behavior.
type OCPPConfig struct {
	SupportedVersions        []string      `mapstructure:"supported_versions"`
	DefaultHeartbeatSeconds  int           `mapstructure:"default_heartbeat_seconds"`
	HeartbeatCheckInterval   time.Duration `mapstructure:"heartbeat_check_interval"`
	HeartbeatStaleAfter      time.Duration `mapstructure:"heartbeat_stale_after"`
	ReservationCheckInterval time.Duration `mapstructure:"reservation_check_interval"`
	CommandTimeout           time.Duration `mapstructure:"command_timeout"`
}

// SecurityConfig controls Basic-Auth and TLS termination.
type SecurityConfig struct {
	RequireBasicAuth bool   `mapstructure:"require_basic_auth"`
	BcryptCost       int    `mapstructure:"bcrypt_cost"`
	TLSEnabled       bool   `mapstructure:"tls_enabled"`
	CertFile         string `mapstructure:"cert_file"`
	KeyFile          string `mapstructure:"key_file"`
}

// TariffConfig holds default pricing settings (spec §3/§4.5 billing).
// cmd/csms does not pass it on: the in-memory repository seeds its own
// default tariff (250 per kWh, USD).
type TariffConfig struct {
	DefaultCurrency    string `mapstructure:"default_currency"`
	DefaultPricePerKwh int64  `mapstructure:"default_price_per_kwh"`
}

// Load reads defaults, then application.yaml, then application-{profile}.yaml,
// then environment overrides, in that order of increasing priority — the
// same layering the teacher's gateway config uses.
func Load() (*Config, error) {
	setDefaults()

	profile := resolveProfile()

	if err := mergeConfigFile("application"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load application.yaml: %v\n", err)
	}
	if profile != "" {
		if err := mergeConfigFile(fmt.Sprintf("application-%s", profile)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load application-%s.yaml: %v\n", profile, err)
		}
	}

	bindEnvironment()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal failed: %w", err)
	}
	cfg.App.Profile = profile
	return &cfg, nil
}

func resolveProfile() string {
	if p := os.Getenv("APP_PROFILE"); p != "" {
		return p
	}
	if p := viper.GetString("app.profile"); p != "" {
		return p
	}
	return "local"
}

func mergeConfigFile(name string) error {
	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	return viper.MergeInConfig()
}

func bindEnvironment() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("redis.addr", "REDIS_ADDR")
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("app.profile", "APP_PROFILE")
	viper.BindEnv("security.require_basic_auth", "REQUIRE_BASIC_AUTH")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		list := strings.Split(brokers, ",")
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
		viper.Set("kafka.brokers", list)
	}
}

func setDefaults() {
	viper.SetDefault("app.name", "csms")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")
	viper.SetDefault("instance_id", "")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.websocket_path", "/ocpp")

	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.read_timeout", "60s")
	viper.SetDefault("websocket.write_timeout", "10s")
	viper.SetDefault("websocket.ping_interval", "30s")
	viper.SetDefault("websocket.pong_timeout", "60s")
	viper.SetDefault("websocket.max_message_size", 262144)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 50)
	viper.SetDefault("redis.min_idle_conns", 5)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.conn_ttl", "5m")

	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "csms-events")
	viper.SetDefault("kafka.producer.retry_max", 3)
	viper.SetDefault("kafka.producer.return_successes", false)
	viper.SetDefault("kafka.producer.flush_frequency", "500ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.async", false)

	viper.SetDefault("event_bus.subscriber_buffer_size", 256)

	viper.SetDefault("monitoring.metrics_path", "/metrics")
	viper.SetDefault("monitoring.health_path", "/health")

	viper.SetDefault("ocpp.supported_versions", []string{"1.6", "2.0.1", "2.1"})
	viper.SetDefault("ocpp.default_heartbeat_seconds", 300)
	viper.SetDefault("ocpp.heartbeat_check_interval", "60s")
	viper.SetDefault("ocpp.heartbeat_stale_after", "180s")
	viper.SetDefault("ocpp.reservation_check_interval", "60s")
	viper.SetDefault("ocpp.command_timeout", "30s")

	viper.SetDefault("security.require_basic_auth", true)
	viper.SetDefault("security.bcrypt_cost", 10)
	viper.SetDefault("security.tls_enabled", false)
	viper.SetDefault("security.cert_file", "")
	viper.SetDefault("security.key_file", "")

	viper.SetDefault("tariff.default_currency", "USD")
	viper.SetDefault("tariff.default_price_per_kwh", 250)
}

// ServerAddr is the host:port the WebSocket/HTTP listener binds to.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IsProduction reports whether the active profile is "prod".
func (c *Config) IsProduction() bool {
	return c.App.Profile == "prod"
}
