package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/voclink/relay-service/pkg/config"
	"github.com/voclink/relay-service/pkg/log"
	"github.com/voclink/relay-service/pkg/pubsub"
)

type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	RTMP   RTMPConfig    `mapstructure:"rtmp"`
	UDP    UDPConfig     `mapstructure:"udp"`
	Room   RoomConfig    `mapstructure:"room"`
	PubSub pubsub.Config `mapstructure:"pubsub"`
	Log    log.Config    `mapstructure:"log"`
}

// ServerConfig configures the admin/control HTTP listener.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RTMPConfig configures the TCP ingest listener.
type RTMPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// UDPConfig configures the media datagram listener.
type UDPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RoomConfig bounds room membership and idle reclamation.
type RoomConfig struct {
	MaxUsers      int           `mapstructure:"max_users"`
	MaxPublishers int           `mapstructure:"max_publishers"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	EventsEnabled bool          `mapstructure:"events_enabled"`
}

func (c ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c RTMPConfig) Addr() string   { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c UDPConfig) Addr() string    { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// Load reads configuration from config/config.yaml and environment variables.
func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("rtmp.host", "0.0.0.0")
	v.SetDefault("rtmp.port", 1935)
	v.SetDefault("rtmp.chunk_size", 128)
	v.SetDefault("udp.host", "0.0.0.0")
	v.SetDefault("udp.port", 8443)
	v.SetDefault("room.max_users", 50)
	v.SetDefault("room.max_publishers", 10)
	v.SetDefault("room.idle_timeout", "5m")
	v.SetDefault("room.sweep_interval", "60s")
	v.SetDefault("room.events_enabled", false)
	v.SetDefault("pubsub.driver", "redis")
	v.SetDefault("pubsub.redis.address", "localhost:6379")
	v.SetDefault("pubsub.redis.pool_size", 10)
	v.SetDefault("pubsub.redis.read_timeout", "3s")
	v.SetDefault("pubsub.redis.write_timeout", "3s")
	v.SetDefault("pubsub.kafka.brokers", "localhost:9092")
	v.SetDefault("pubsub.kafka.group_id", "relay-service")
	v.SetDefault("pubsub.kafka.partitions", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.service_name", "relay-service")

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("rtmp.port", "RTMP_PORT")
	v.BindEnv("udp.port", "UDP_PORT")
	v.BindEnv("room.max_users", "ROOM_MAX_USERS")
	v.BindEnv("room.max_publishers", "ROOM_MAX_PUBLISHERS")
	v.BindEnv("room.idle_timeout", "ROOM_IDLE_TIMEOUT")
	v.BindEnv("pubsub.driver", "PUBSUB_DRIVER")
	v.BindEnv("pubsub.redis.address", "REDIS_ADDRESS")
	v.BindEnv("pubsub.redis.password", "REDIS_PASSWORD")
	v.BindEnv("pubsub.kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
