package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/pubsub"
	"github.com/Hangulling/dorandoran-chat/internal/store"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Bus       pubsub.Config
	Database  store.Config
	Auth      AuthConfig
	Delivery  DeliveryConfig
	Log       log.Config
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type DeliveryConfig struct {
	// PublishOnSaveFailure controls whether a persistence failure still
	// triggers the live publish. Defaults to true: live display continues
	// while the failure is surfaced in the logs.
	PublishOnSaveFailure bool          `mapstructure:"publish_on_save_failure"`
	SSEKeepAlive         time.Duration `mapstructure:"sse_keepalive"`
}

// Load reads config.yaml from ./config (or the working directory), applies
// defaults, and lets environment variables override individual keys.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: rely on defaults and env vars.
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8084)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("bus.driver", "redis")
	v.SetDefault("bus.redis.address", "localhost:6379")
	v.SetDefault("bus.redis.password", "")
	v.SetDefault("bus.redis.db", 0)
	v.SetDefault("bus.redis.pool_size", 10)
	v.SetDefault("bus.redis.read_timeout", "3s")
	v.SetDefault("bus.redis.write_timeout", "3s")
	v.SetDefault("bus.kafka.brokers", "localhost:9092")
	v.SetDefault("bus.kafka.group_id", "")
	v.SetDefault("bus.kafka.partitions", 8)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "dorandoran")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "dorandoran_chat")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "dorandoran")
	v.SetDefault("auth.token_ttl", "1h")
	v.SetDefault("delivery.publish_on_save_failure", true)
	v.SetDefault("delivery.sse_keepalive", "25s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.service_name", "chat-delivery")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("bus.driver", "BUS_DRIVER")
	v.BindEnv("bus.redis.address", "REDIS_ADDRESS")
	v.BindEnv("bus.redis.password", "REDIS_PASSWORD")
	v.BindEnv("bus.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)
	cfg.Bus.Redis.ReadTimeout = parseDuration(v, "bus.redis.read_timeout", 3*time.Second)
	cfg.Bus.Redis.WriteTimeout = parseDuration(v, "bus.redis.write_timeout", 3*time.Second)
	cfg.Auth.TokenTTL = parseDuration(v, "auth.token_ttl", time.Hour)
	cfg.Delivery.SSEKeepAlive = parseDuration(v, "delivery.sse_keepalive", 25*time.Second)

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret (JWT_SECRET) is required")
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return defaultVal
	}
	return d
}
