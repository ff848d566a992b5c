package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppCfg struct {
	Name string
	Env  string
	Host string
	Port int
}

type LogCfg struct {
	Level string
}

type DatabaseCfg struct {
	// Driver is "postgres" or "sqlite".
	Driver      string
	DSN         string
	MaxOpen     int `mapstructure:"max_open"`
	MaxIdle     int `mapstructure:"max_idle"`
	AutoMigrate bool `mapstructure:"auto_migrate"`
	EnableTLS   bool `mapstructure:"enable_tls"`
}

type RedisCfg struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int  `mapstructure:"pool_size"`
	EnableTLS bool `mapstructure:"enable_tls"`
}

type MQExchangeName struct {
	Notification string
}

type MQRoutingKey struct {
	NotificationCreated string `mapstructure:"notification_created"`
}

type MQQueue struct {
	NotificationDelivery string `mapstructure:"notification_delivery"`
}

type MQCfg struct {
	URL          string
	EnableTLS    bool           `mapstructure:"enable_tls"`
	Prefetch     int            `mapstructure:"prefetch"`
	ExchangeName MQExchangeName `mapstructure:"exchange_name"`
	RoutingKey   MQRoutingKey   `mapstructure:"routing_key"`
	Queue        MQQueue        `mapstructure:"queue"`
}

type AuthCfg struct {
	// Mode is "jwt" (tokens verified locally) or "remote" (introspection endpoint).
	Mode             string
	JWTSecret        string        `mapstructure:"jwt_secret"`
	JWTIssuer        string        `mapstructure:"jwt_issuer"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	RemoteURL        string        `mapstructure:"remote_url"`
	ServiceKeyPrefix string        `mapstructure:"service_key_prefix"`
	SecretPepper     string        `mapstructure:"secret_pepper"`
	RootServiceKey   string        `mapstructure:"root_service_key"`
	// EnableArgon2Verification adds a full PHC check after the HMAC lookup.
	EnableArgon2Verification bool `mapstructure:"enable_argon2_verification"`
}

type ReconnectCfg struct {
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type RealtimeCfg struct {
	SendBuffer         int           `mapstructure:"send_buffer"`
	MaxMessageSize     int64         `mapstructure:"max_message_size"`
	WriteWait          time.Duration `mapstructure:"write_wait"`
	PongWait           time.Duration `mapstructure:"pong_wait"`
	PingInterval       time.Duration `mapstructure:"ping_interval"`
	HandlerParallelism int           `mapstructure:"handler_parallelism"`
	EventsPerSecond    float64       `mapstructure:"events_per_second"`
	EventBurst         int           `mapstructure:"event_burst"`
	RedisBus           bool          `mapstructure:"redis_bus"`
	BusChannel         string        `mapstructure:"bus_channel"`
	CallTTL            time.Duration `mapstructure:"call_ttl"`
	Reconnect          ReconnectCfg  `mapstructure:"reconnect"`
}

type TelemetryCfg struct {
	Enabled      bool
	OtlpEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Config struct {
	App       AppCfg
	Log       LogCfg
	Database  DatabaseCfg
	Redis     RedisCfg
	RabbitMQ  MQCfg `mapstructure:"rabbitmq"`
	Auth      AuthCfg
	Realtime  RealtimeCfg
	Telemetry TelemetryCfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mebelplace-rt")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8029)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=mebelplace password=mebelplace dbname=mebelplace port=5432 sslmode=disable")
	v.SetDefault("database.max_open", 20)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rabbitmq.prefetch", 10)
	v.SetDefault("rabbitmq.exchange_name.notification", "mebelplace.notification")
	v.SetDefault("rabbitmq.routing_key.notification_created", "notification.created")
	v.SetDefault("rabbitmq.queue.notification_delivery", "mebelplace.notification.delivery")

	v.SetDefault("auth.mode", "jwt")
	v.SetDefault("auth.jwt_issuer", "mebelplace")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.service_key_prefix", "sk-mp-")

	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.max_message_size", 64*1024)
	v.SetDefault("realtime.write_wait", 10*time.Second)
	v.SetDefault("realtime.pong_wait", 60*time.Second)
	v.SetDefault("realtime.ping_interval", 54*time.Second)
	v.SetDefault("realtime.handler_parallelism", 8)
	v.SetDefault("realtime.events_per_second", 20.0)
	v.SetDefault("realtime.event_burst", 40)
	v.SetDefault("realtime.bus_channel", "mebelplace:realtime")
	v.SetDefault("realtime.call_ttl", 2*time.Hour)
	v.SetDefault("realtime.reconnect.base_delay", time.Second)
	v.SetDefault("realtime.reconnect.max_attempts", 5)

	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Load reads config.yaml (or the file named by CONFIG_FILE) and applies
// MEBELPLACE_* environment overrides on top of the defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("MEBELPLACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return errors.New("config: database.driver must be postgres or sqlite")
	}
	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("config: auth.jwt_secret is required in jwt mode")
		}
	case "remote":
		if c.Auth.RemoteURL == "" {
			return errors.New("config: auth.remote_url is required in remote mode")
		}
	default:
		return errors.New("config: auth.mode must be jwt or remote")
	}
	if c.Realtime.Reconnect.MaxAttempts <= 0 {
		return errors.New("config: realtime.reconnect.max_attempts must be positive")
	}
	return nil
}
