package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	DBPath     string        `mapstructure:"db_path"`

	Auth  AuthConfig  `mapstructure:"auth"`
	Calls CallsConfig `mapstructure:"calls"`
	WS    WSConfig    `mapstructure:"ws"`
}

type AuthConfig struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// Deadline is how long a fresh connection may stay unauthenticated.
	Deadline time.Duration `mapstructure:"deadline"`
}

type CallsConfig struct {
	RingTimeout     time.Duration `mapstructure:"ring_timeout"`
	StrictSignaling bool          `mapstructure:"strict_signaling"`
}

type WSConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_path", "./data/chat.db")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.deadline", "10s")
	v.SetDefault("calls.ring_timeout", "30s")
	v.SetDefault("calls.strict_signaling", false)
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.rate_limit", 20)
	v.SetDefault("ws.rate_interval", "1s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Every key
// can be overridden from the environment with the CHAT_ prefix, dots
// replaced by underscores (CHAT_CALLS_RING_TIMEOUT).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Str("db", cfg.DBPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required (set CHAT_SECRET)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("bad port %d", c.Port)
	}
	if c.Calls.RingTimeout <= 0 {
		return fmt.Errorf("bad calls.ring_timeout %s", c.Calls.RingTimeout)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("bad ws.send_buffer %d", c.WS.SendBuffer)
	}
	return nil
}
