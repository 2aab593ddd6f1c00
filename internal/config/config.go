package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
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

	Relay      RelayConfig       `mapstructure:"relay"`
	ICEServers []ICEServerConfig `mapstructure:"ice_servers"`
	Client     ClientConfig      `mapstructure:"client"`
}

// RelayConfig tunes the signaling and websocket relay.
type RelayConfig struct {
	DefaultParticipants int           `mapstructure:"default_participants"`
	MaxParticipants     int           `mapstructure:"max_participants"`
	SessionTTL          time.Duration `mapstructure:"session_ttl"`
	JanitorInterval     time.Duration `mapstructure:"janitor_interval"`
	MailboxSize         int           `mapstructure:"mailbox_size"`
	SendQueue           int           `mapstructure:"send_queue"`
	Policy              string        `mapstructure:"policy"`
	PollRateLimit       int           `mapstructure:"poll_rate_limit"`
	PollRateWindow      time.Duration `mapstructure:"poll_rate_window"`
}

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// ClientConfig drives presencectl participants.
type ClientConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Transport        string        `mapstructure:"transport"`
	TurnEndpoint     string        `mapstructure:"turn_endpoint"`
	Prefix           string        `mapstructure:"prefix"`
	ParticipantLimit int           `mapstructure:"participant_limit"`
	PollFast         time.Duration `mapstructure:"poll_fast"`
	PollSlow         time.Duration `mapstructure:"poll_slow"`
	RoomFullDelay    time.Duration `mapstructure:"room_full_delay"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")

	v.SetDefault("relay.default_participants", 10)
	v.SetDefault("relay.max_participants", 50)
	v.SetDefault("relay.session_ttl", "30s")
	v.SetDefault("relay.janitor_interval", "5s")
	v.SetDefault("relay.mailbox_size", 64)
	v.SetDefault("relay.send_queue", 32)
	v.SetDefault("relay.policy", "kick")
	v.SetDefault("relay.poll_rate_limit", 20)
	v.SetDefault("relay.poll_rate_window", "10s")

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.transport", "mesh")
	v.SetDefault("client.prefix", "xr-publisher")
	v.SetDefault("client.participant_limit", 10)
	v.SetDefault("client.poll_fast", "1500ms")
	v.SetDefault("client.poll_slow", "5s")
	v.SetDefault("client.room_full_delay", "500ms")
}

// Load reads config/config.<CONFIG_ENV>.yaml, "dev" when unset.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName over the defaults; a missing file is not an error.
// PRESENCE_ environment variables override both, e.g. PRESENCE_RELAY_MAX_PARTICIPANTS.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("PRESENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", fileName, err)
		}
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
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("max_participants", cfg.Relay.MaxParticipants).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Relay.DefaultParticipants <= 0 {
		return fmt.Errorf("relay.default_participants must be positive, got %d", c.Relay.DefaultParticipants)
	}
	if c.Relay.MaxParticipants < c.Relay.DefaultParticipants {
		return fmt.Errorf("relay.max_participants %d below default_participants %d", c.Relay.MaxParticipants, c.Relay.DefaultParticipants)
	}
	if c.Relay.SessionTTL <= 0 || c.Relay.JanitorInterval <= 0 {
		return errors.New("relay.session_ttl and relay.janitor_interval must be positive")
	}
	for i, s := range c.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("ice_servers[%d]: no urls", i)
		}
	}
	return nil
}

// Level maps log_level onto zerolog, falling back to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
