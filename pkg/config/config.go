// Package config loads settings from meisai.yaml, the environment, a .env
// file and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/yurifrl/meisai/pkg/enavi"
	"github.com/yurifrl/meisai/pkg/models"
)

// Notification channels.
const (
	ChannelLine    = "line"
	ChannelMailgun = "mailgun"
	ChannelStdout  = "stdout"
)

// EnvFile is loaded into the environment when present.
const EnvFile = ".env"

// ConfigurationError is a missing or invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration: %s is required", e.Field)
}

type Credentials struct {
	ID       string `mapstructure:"id"`
	Password string `mapstructure:"password"`
}

type Portal struct {
	LoginURL          string        `mapstructure:"login_url"`
	StatementURL      string        `mapstructure:"statement_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Headless          bool          `mapstructure:"headless"`
	ChromePath        string        `mapstructure:"chrome_path"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`
	LoginSettle       time.Duration `mapstructure:"login_settle"`
	PostLoginSettle   time.Duration `mapstructure:"post_login_settle"`
	PageSettle        time.Duration `mapstructure:"page_settle"`
}

type Storage struct {
	Dir      string `mapstructure:"dir"`
	Encoding string `mapstructure:"encoding"`
}

type Line struct {
	Token    string `mapstructure:"token"`
	Endpoint string `mapstructure:"endpoint"`
}

type Mailgun struct {
	Domain  string   `mapstructure:"domain"`
	APIKey  string   `mapstructure:"api_key"`
	APIBase string   `mapstructure:"api_base"`
	From    string   `mapstructure:"from"`
	To      []string `mapstructure:"to"`
}

type Notify struct {
	Channel string  `mapstructure:"channel"`
	Line    Line    `mapstructure:"line"`
	Mailgun Mailgun `mapstructure:"mailgun"`
}

type History struct {
	Path string `mapstructure:"path"`
}

type Config struct {
	Credentials Credentials     `mapstructure:"credentials"`
	Portal      Portal          `mapstructure:"portal"`
	Storage     Storage         `mapstructure:"storage"`
	Timezone    string          `mapstructure:"timezone"`
	Periods     []models.Period `mapstructure:"periods"`
	Notify      Notify          `mapstructure:"notify"`
	History     History         `mapstructure:"history"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"storage":  "storage.dir",
	"encoding": "storage.encoding",
	"headless": "portal.headless",
	"notify":   "notify.channel",
	"timezone": "timezone",
	"history":  "history.path",
}

func setDefaults(v *viper.Viper) {
	portal := enavi.DefaultConfig()
	v.SetDefault("credentials.id", "")
	v.SetDefault("credentials.password", "")
	v.SetDefault("portal.login_url", portal.LoginURL)
	v.SetDefault("portal.statement_url", portal.StatementURL)
	v.SetDefault("portal.user_agent", "")
	v.SetDefault("portal.headless", true)
	v.SetDefault("portal.chrome_path", "")
	v.SetDefault("portal.navigation_timeout", portal.NavigationTimeout)
	v.SetDefault("portal.download_timeout", portal.DownloadTimeout)
	v.SetDefault("portal.login_settle", portal.LoginSettle)
	v.SetDefault("portal.post_login_settle", portal.PostLoginSettle)
	v.SetDefault("portal.page_settle", portal.PageSettle)
	v.SetDefault("storage.dir", "./storage")
	v.SetDefault("storage.encoding", "utf-8")
	v.SetDefault("timezone", "Asia/Tokyo")
	v.SetDefault("periods", []models.Period{models.CurrentMonth, models.NextMonth})
	v.SetDefault("notify.channel", ChannelLine)
	v.SetDefault("notify.line.token", "")
	v.SetDefault("notify.line.endpoint", "")
	v.SetDefault("notify.mailgun.domain", "")
	v.SetDefault("notify.mailgun.api_key", "")
	v.SetDefault("notify.mailgun.api_base", "")
	v.SetDefault("notify.mailgun.from", "")
	v.SetDefault("notify.mailgun.to", []string{})
	v.SetDefault("history.path", "")
}

// Build reads cfgFile (or meisai.yaml in the working directory when empty),
// the environment and flags. flags may be nil.
func Build(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	if err := gotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", EnvFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MEISAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Names the portal scripts have always used.
	_ = v.BindEnv("credentials.id", "ID", "MEISAI_CREDENTIALS_ID")
	_ = v.BindEnv("credentials.password", "PASS", "MEISAI_CREDENTIALS_PASSWORD")
	_ = v.BindEnv("notify.line.token", "LINE_ACCESS_TOKEN", "MEISAI_NOTIFY_LINE_TOKEN")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("meisai")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks what a portal run needs before anything is opened.
func (c *Config) Validate() error {
	if c.Credentials.ID == "" {
		return &ConfigurationError{Field: "ID"}
	}
	if c.Credentials.Password == "" {
		return &ConfigurationError{Field: "PASS"}
	}
	if len(c.Periods) == 0 {
		return &ConfigurationError{Field: "periods", Reason: "no statement period configured"}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, &ConfigurationError{Field: "timezone", Reason: err.Error()}
	}
	return loc, nil
}

// Enavi returns the portal settings.
func (c *Config) Enavi() enavi.Config {
	cfg := enavi.DefaultConfig()
	p := c.Portal
	if p.LoginURL != "" {
		cfg.LoginURL = p.LoginURL
	}
	if p.StatementURL != "" {
		cfg.StatementURL = p.StatementURL
	}
	cfg.NavigationTimeout = p.NavigationTimeout
	cfg.DownloadTimeout = p.DownloadTimeout
	cfg.LoginSettle = p.LoginSettle
	cfg.PostLoginSettle = p.PostLoginSettle
	cfg.PageSettle = p.PageSettle
	return cfg
}
