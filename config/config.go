package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for deconzctl.
type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway"`
	Demo    bool          `mapstructure:"demo"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	TUI     TUIConfig     `mapstructure:"tui"`
}

// GatewayConfig points at the deCONZ gateway.
type GatewayConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	Devicetype string `mapstructure:"devicetype"`
}

// MQTTConfig configures the optional event republisher.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// TUIConfig configures the terminal UI. A zero PollIntervalMs means
// the interval persisted in the state store applies.
type TUIConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// BaseURL renders the gateway's REST endpoint.
func (g GatewayConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", g.Host, g.Port)
}

// Load reads configuration from a yaml file plus DECONZ_* environment
// variables. path may be a directory to search or an explicit file;
// an empty path searches the standard config locations. A missing
// file is not an error: environment variables and defaults carry a
// usable configuration on their own.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("gateway.host", "")
	v.SetDefault("gateway.port", 80)
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.devicetype", "deconzctl")
	v.SetDefault("demo", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "deconzctl")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "deconz")
	v.SetDefault("tui.poll_interval_ms", 0)

	v.SetConfigName("deconzctl")
	v.SetConfigType("yaml")
	if path != "" {
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			v.SetConfigFile(path)
		} else {
			v.AddConfigPath(path)
		}
	} else {
		v.AddConfigPath("$HOME/.config/deconzctl")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("deconz")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The env names the desktop predecessor used.
	_ = v.BindEnv("gateway.host", "DECONZ_HOST")
	_ = v.BindEnv("gateway.api_key", "DECONZ_API_KEY", "DECONZ_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
