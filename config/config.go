package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SOLAR_CLOCK"

type Config struct {
	Location LocationConfig `mapstructure:"location"`
	Sunset   SunsetConfig   `mapstructure:"sunset"`
	GeoIP    GeoIPConfig    `mapstructure:"geoip"`
	Clock    ClockConfig    `mapstructure:"clock"`
	API      APIConfig      `mapstructure:"api"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// LocationConfig pins the clock to fixed coordinates. With both zero the
// coordinates come from the browser.
type LocationConfig struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
	Label     string  `mapstructure:"label"`
}

type SunsetConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
	Cache    bool          `mapstructure:"cache"`
}

type GeoIPConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ClockConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Theme    string        `mapstructure:"theme"`
	Mode     string        `mapstructure:"mode"`
	Stars    int           `mapstructure:"stars"`
	Timezone string        `mapstructure:"timezone"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type ModbusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	UnitID  uint8  `mapstructure:"unit_id"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TimeZone resolves Clock.Timezone, defaulting to the host zone.
func (c *Config) TimeZone() (*time.Location, error) {
	if c.Clock.Timezone == "" || strings.EqualFold(c.Clock.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Clock.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid clock.timezone %q: %w", c.Clock.Timezone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("location.latitude", 0)
	v.SetDefault("location.longitude", 0)
	v.SetDefault("location.label", "")
	v.SetDefault("sunset.provider", "sunrise-sunset")
	v.SetDefault("sunset.base_url", "")
	v.SetDefault("sunset.timeout", "10s")
	v.SetDefault("sunset.attempts", 3)
	v.SetDefault("sunset.backoff", "2s")
	v.SetDefault("sunset.cache", true)
	v.SetDefault("geoip.enabled", true)
	v.SetDefault("geoip.url", "https://ipwho.is/")
	v.SetDefault("geoip.timeout", "5s")
	v.SetDefault("clock.interval", "1s")
	v.SetDefault("clock.theme", "night")
	v.SetDefault("clock.mode", "solar")
	v.SetDefault("clock.stars", 100)
	v.SetDefault("clock.timezone", "Local")
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8046)
	v.SetDefault("api.base_url", "http://localhost:8046")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "solarclock")
	v.SetDefault("mqtt.client_id", "solar-clock")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("modbus.enabled", false)
	v.SetDefault("modbus.url", "tcp://0.0.0.0:5502")
	v.SetDefault("modbus.unit_id", 1)
	v.SetDefault("database.path", "./solar-clock.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configPath, or config.yaml from . and /etc/solar-clock when
// empty. A missing file is not an error. SOLAR_CLOCK_* environment variables
// override both, e.g. SOLAR_CLOCK_API_BASE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/solar-clock")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the mode toggles and fixed location back to configPath,
// keeping any other keys already in the file.
func Save(configPath string, cfg *Config) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.Set("clock.theme", cfg.Clock.Theme)
	v.Set("clock.mode", cfg.Clock.Mode)
	v.Set("location.latitude", cfg.Location.Latitude)
	v.Set("location.longitude", cfg.Location.Longitude)
	v.Set("location.label", cfg.Location.Label)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
