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
	LogLevel string `mapstructure:"log_level"`
	Client   Client `mapstructure:"client"`
	Sync     Sync   `mapstructure:"sync"`
	Push     Push   `mapstructure:"push"`
	Server   Server `mapstructure:"server"`
}

type Client struct {
	ServerURL   string `mapstructure:"server_url"`
	RoomCode    string `mapstructure:"room_code"`
	DisplayName string `mapstructure:"display_name"`
}

// Sync holds the engine's timing knobs.
type Sync struct {
	DriftThreshold      float64       `mapstructure:"drift_threshold"`
	SettleWindow        time.Duration `mapstructure:"settle_window"`
	PlaybackInterval    time.Duration `mapstructure:"playback_interval"`
	ChatInterval        time.Duration `mapstructure:"chat_interval"`
	MemberCountInterval time.Duration `mapstructure:"member_count_interval"`
	MemberListInterval  time.Duration `mapstructure:"member_list_interval"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	DedupClearInterval  time.Duration `mapstructure:"dedup_clear_interval"`
	VideoCheckCooldown  time.Duration `mapstructure:"video_check_cooldown"`
	VideoCheckDelay     time.Duration `mapstructure:"video_check_delay"`
	NotifyInterval      time.Duration `mapstructure:"notify_interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
}

type Push struct {
	ReconnectMin time.Duration `mapstructure:"reconnect_min"`
	ReconnectMax time.Duration `mapstructure:"reconnect_max"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type Server struct {
	Port      int    `mapstructure:"port"`
	RedisAddr string `mapstructure:"redis_addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.room_code", "")
	v.SetDefault("client.display_name", "viewer")

	v.SetDefault("sync.drift_threshold", 1.0)
	v.SetDefault("sync.settle_window", "1s")
	v.SetDefault("sync.playback_interval", "10s")
	v.SetDefault("sync.chat_interval", "5s")
	v.SetDefault("sync.member_count_interval", "10s")
	v.SetDefault("sync.member_list_interval", "15s")
	v.SetDefault("sync.heartbeat_interval", "5s")
	v.SetDefault("sync.dedup_clear_interval", "60s")
	v.SetDefault("sync.video_check_cooldown", "3s")
	v.SetDefault("sync.video_check_delay", "500ms")
	v.SetDefault("sync.notify_interval", "5s")
	v.SetDefault("sync.request_timeout", "10s")

	v.SetDefault("push.reconnect_min", "500ms")
	v.SetDefault("push.reconnect_max", "10s")
	v.SetDefault("push.ping_period", "54s")
	v.SetDefault("push.send_buffer", 32)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.redis_addr", "")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Errorf("default config: %w", err))
	}
	return cfg
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to "dev").
// A missing file is not an error; defaults and WATCHSYNC_* env vars apply.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WATCHSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	s := c.Sync
	if s.DriftThreshold <= 0 {
		return fmt.Errorf("sync.drift_threshold must be positive, got %v", s.DriftThreshold)
	}
	intervals := map[string]time.Duration{
		"sync.playback_interval":     s.PlaybackInterval,
		"sync.chat_interval":         s.ChatInterval,
		"sync.member_count_interval": s.MemberCountInterval,
		"sync.member_list_interval":  s.MemberListInterval,
		"sync.heartbeat_interval":    s.HeartbeatInterval,
		"sync.dedup_clear_interval":  s.DedupClearInterval,
	}
	for key, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Push.ReconnectMin <= 0 || c.Push.ReconnectMax < c.Push.ReconnectMin {
		return fmt.Errorf("push reconnect bounds invalid: min=%s max=%s", c.Push.ReconnectMin, c.Push.ReconnectMax)
	}
	return nil
}
