package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	Secret         string        `mapstructure:"secret"`
	AppID          string        `mapstructure:"app_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	Auth      AuthConfig      `mapstructure:"auth"`
	Store     StoreConfig     `mapstructure:"store"`
	Bus       BusConfig       `mapstructure:"bus"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	ChannelKey    string        `mapstructure:"channel_key"`
	ChannelSecret string        `mapstructure:"channel_secret"`
	RequireToken  bool          `mapstructure:"require_token"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory | redis | mongo | postgres
	Retries  int            `mapstructure:"retries"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type BusConfig struct {
	Driver string      `mapstructure:"driver"` // local | redis | kafka
	Redis  RedisConfig `mapstructure:"redis"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	Policy string      `mapstructure:"policy"` // kick | drop
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	GroupID  string   `mapstructure:"group_id"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
}

type RateLimitConfig struct {
	Messages int           `mapstructure:"messages"`
	Interval time.Duration `mapstructure:"interval"`
}

var ErrInsecureSecret = errors.New("secret must be set outside debug mode")

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("app_id", "rooms")
	v.SetDefault("request_timeout", "10s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.channel_key", "rooms")
	v.SetDefault("auth.channel_secret", "")
	v.SetDefault("auth.require_token", false)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.retries", 16)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.pool_size", 10)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "rooms")
	v.SetDefault("store.mongo.collection", "rooms")
	v.SetDefault("store.postgres.dsn", "")

	v.SetDefault("bus.driver", "local")
	v.SetDefault("bus.policy", "kick")
	v.SetDefault("bus.redis.addr", "localhost:6379")
	v.SetDefault("bus.redis.password", "")
	v.SetDefault("bus.redis.db", 0)
	v.SetDefault("bus.redis.pool_size", 4)
	v.SetDefault("bus.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("bus.kafka.topic", "room-events")
	v.SetDefault("bus.kafka.group_id", "rooms")
	v.SetDefault("bus.kafka.username", "")
	v.SetDefault("bus.kafka.password", "")

	v.SetDefault("ratelimit.messages", 10)
	v.SetDefault("ratelimit.interval", "5s")
}

// Load reads .env, then config/config.<CONFIG_ENV>.yaml, then ROOMS_* variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load without the .env step. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("ROOMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s | Bus: %s\n", cfg.Mode, cfg.Port, cfg.Store.Driver, cfg.Bus.Driver)
	return &cfg, nil
}

// fill derives unset secrets from Secret; debug mode gets a fixed development secret.
func (c *Config) fill() error {
	if c.Secret == "" {
		if c.Mode != "debug" {
			return ErrInsecureSecret
		}
		c.Secret = "dev-secret-change-me"
	}
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = c.Secret
	}
	if c.Auth.ChannelSecret == "" {
		c.Auth.ChannelSecret = c.Secret
	}
	if len(c.Bus.Kafka.Brokers) == 1 && strings.Contains(c.Bus.Kafka.Brokers[0], ",") {
		c.Bus.Kafka.Brokers = strings.Split(c.Bus.Kafka.Brokers[0], ",")
	}
	return nil
}
