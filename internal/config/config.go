package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"line-monitor/common/config"
	"line-monitor/internal/domain"
)

// Config line-monitor configuration
type Config struct {
	Database config.DatabaseConfig     `mapstructure:"database"`
	Redis    config.RedisConfig        `mapstructure:"redis"`
	MQTT     config.MQTTConfig         `mapstructure:"mqtt"`
	Shift    domain.ShiftConfiguration `mapstructure:"shift"`
	Log      config.LogConfig          `mapstructure:"log"`

	Monitor struct {
		// HTTP listen address of the presentation API
		ListenAddr string `mapstructure:"listen_addr"`

		// upper bound for a single scheduled refresh
		TickTimeout time.Duration `mapstructure:"tick_timeout"`

		// IANA zone used to bucket stoppages into calendar days; "Local" uses the host zone
		Timezone string `mapstructure:"timezone"`

		// Redis latest-value key and stream for published refreshes
		CacheKey     string `mapstructure:"cache_key"`
		StreamKey    string `mapstructure:"stream_key"`
		StreamMaxLen int64  `mapstructure:"stream_max_len"`

		// MQTT topic for published refreshes
		MQTTTopic string `mapstructure:"mqtt_topic"`
	} `mapstructure:"monitor"`
}

// envBindings maps config keys to the environment variables shared with the other services
var envBindings = map[string]string{
	"config":                     "CONFIG_FILE",
	"database.enabled":           "DB_ENABLED",
	"database.host":              "DB_HOST",
	"database.port":              "DB_PORT",
	"database.user":              "DB_USER",
	"database.password":          "DB_PASSWORD",
	"database.database":          "DB_NAME",
	"database.sslmode":           "DB_SSLMODE",
	"database.max_conns":         "DB_MAX_CONNS",
	"database.min_conns":         "DB_MIN_CONNS",
	"database.conn_max_lifetime": "DB_CONN_MAX_LIFETIME",
	"database.query_timeout":     "DB_QUERY_TIMEOUT",
	"redis.enabled":              "REDIS_ENABLED",
	"redis.addr":                 "REDIS_ADDR",
	"redis.password":             "REDIS_PASSWORD",
	"redis.db":                   "REDIS_DB",
	"mqtt.enabled":               "MQTT_ENABLED",
	"mqtt.broker":                "MQTT_BROKER",
	"mqtt.client_id":             "MQTT_CLIENT_ID",
	"mqtt.username":              "MQTT_USERNAME",
	"mqtt.password":              "MQTT_PASSWORD",
	"shift.units_per_minute":     "SHIFT_UNITS_PER_MINUTE",
	"shift.shift_minutes":        "SHIFT_MINUTES",
	"shift.refresh_interval":     "REFRESH_INTERVAL",
	"monitor.listen_addr":        "HTTP_ADDR",
	"monitor.timezone":           "MONITOR_TIMEZONE",
	"log.level":                  "LOG_LEVEL",
	"log.format":                 "LOG_FORMAT",
	"log.file":                   "LOG_FILE",
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	shift := domain.DefaultShift()

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "producao")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.query_timeout", 5*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "line-monitor")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("shift.units_per_minute", shift.UnitsPerMinute)
	v.SetDefault("shift.shift_minutes", shift.ShiftMinutes)
	v.SetDefault("shift.refresh_interval", shift.RefreshInterval)

	v.SetDefault("monitor.listen_addr", ":8080")
	v.SetDefault("monitor.tick_timeout", 30*time.Second)
	v.SetDefault("monitor.timezone", "Local")
	v.SetDefault("monitor.cache_key", "line-monitor:indicators:latest")
	v.SetDefault("monitor.stream_key", "line-monitor:indicators")
	v.SetDefault("monitor.stream_max_len", 1440)
	v.SetDefault("monitor.mqtt_topic", "line-monitor/indicators")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
}

// Load resolves configuration. Precedence (later wins): defaults, YAML file
// named by the "config" key, environment variables, flags already bound to v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path := v.GetString("config"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the service cannot run with. Errors wrap domain.ErrConfiguration.
func (c *Config) Validate() error {
	if err := c.Shift.Validate(); err != nil {
		return err
	}
	if c.Database.Enabled {
		if c.Database.MaxConns <= 0 {
			return fmt.Errorf("%w: database.max_conns must be positive", domain.ErrConfiguration)
		}
		if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
			return fmt.Errorf("%w: database.min_conns must be within [0, max_conns]", domain.ErrConfiguration)
		}
		if c.Database.QueryTimeout <= 0 {
			return fmt.Errorf("%w: database.query_timeout must be positive", domain.ErrConfiguration)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Monitor.Timezone
func (c *Config) Location() (*time.Location, error) {
	if c.Monitor.Timezone == "" || c.Monitor.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Monitor.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: monitor.timezone: %v", domain.ErrConfiguration, err)
	}
	return loc, nil
}
