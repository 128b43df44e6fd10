package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	LogLevel   string `mapstructure:"log_level"`
	// Secret keys the session cookie store.
	Secret string `mapstructure:"secret"`

	Provider Provider `mapstructure:"provider"`
	Login    Login    `mapstructure:"login"`
	RTC      RTC      `mapstructure:"rtc"`
	Redis    Redis    `mapstructure:"redis"`
	Signal   Signal   `mapstructure:"signal"`
}

// Provider holds the credentials of the conferencing application.
type Provider struct {
	DeveloperKey     string `mapstructure:"developer_key"`
	ApplicationID    string `mapstructure:"application_id"`
	ExpiresInSeconds int64  `mapstructure:"expires_in_seconds"`
}

type Login struct {
	DefaultRoom  string        `mapstructure:"default_room"`
	DefaultHost  string        `mapstructure:"default_host"`
	JoinLimit    int           `mapstructure:"join_limit"`
	JoinInterval time.Duration `mapstructure:"join_interval"`
	// IdleTTL reclaims a browser's session once it has been idle that long.
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type RTC struct {
	ICEServers        []string      `mapstructure:"ice_servers"`
	LoadTimeout       time.Duration `mapstructure:"load_timeout"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequiredVersion   string        `mapstructure:"required_version"`
	PlugInDownloadURL string        `mapstructure:"plugin_download_url"`
	AppDownloadURL    string        `mapstructure:"app_download_url"`
}

// Redis is optional; an empty Addr keeps handoffs in memory.
type Redis struct {
	Addr   string `mapstructure:"addr"`
	Prefix string `mapstructure:"prefix"`
}

type Signal struct {
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
}

var (
	ErrMissingCredentials = errors.New("provider developer_key and application_id are required")
	// ErrApplicationID rejects ids the credential's jid (user@app) cannot carry.
	ErrApplicationID = errors.New("provider application_id must not contain '@'")
)

// Load reads defaults, then config/config.<env>.yaml (or --config), then
// LOBBY_* environment variables, then flags from args.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("lobby", pflag.ContinueOnError)
	fs.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
	fs.Int("port", 8080, "http listen port")
	fs.String("mode", "release", "gin mode: release or debug")
	fs.String("log-level", "info", "log level")
	fs.String("redis-addr", "", "redis address for session handoffs")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("log_level", "info")
	v.SetDefault("secret", "")
	v.SetDefault("provider.developer_key", "")
	v.SetDefault("provider.application_id", "")
	v.SetDefault("provider.expires_in_seconds", 3600)
	v.SetDefault("login.default_room", "demoRoom")
	v.SetDefault("login.default_host", "prod.vidyo.io")
	v.SetDefault("login.join_limit", 5)
	v.SetDefault("login.join_interval", "1m")
	v.SetDefault("login.idle_ttl", "10m")
	v.SetDefault("rtc.load_timeout", "10s")
	v.SetDefault("rtc.retry_delay", "2s")
	v.SetDefault("rtc.required_version", "")
	v.SetDefault("rtc.plugin_download_url", "")
	v.SetDefault("rtc.app_download_url", "")
	v.SetDefault("redis.prefix", "lobby")
	v.SetDefault("signal.read_limit", 4096)
	v.SetDefault("signal.ping_period", "54s")

	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, flag := range map[string]string{
		"port":       "port",
		"mode":       "mode",
		"log_level":  "log-level",
		"redis.addr": "redis-addr",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	fileName, _ := fs.GetString("config")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

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
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Str("application_id", cfg.Provider.ApplicationID).
		Bool("redis", cfg.Redis.Addr != "").
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Provider.DeveloperKey == "" || c.Provider.ApplicationID == "" {
		return ErrMissingCredentials
	}
	if c.Provider.ExpiresInSeconds <= 0 {
		return fmt.Errorf("provider.expires_in_seconds must be > 0, got %d", c.Provider.ExpiresInSeconds)
	}
	if strings.Contains(c.Provider.ApplicationID, "@") {
		return ErrApplicationID
	}
	if c.Login.JoinLimit <= 0 || c.Login.JoinInterval <= 0 {
		return fmt.Errorf("login.join_limit and login.join_interval must be > 0")
	}
	if c.Login.IdleTTL < 0 {
		return fmt.Errorf("login.idle_ttl must be >= 0, got %v", c.Login.IdleTTL)
	}
	return nil
}
