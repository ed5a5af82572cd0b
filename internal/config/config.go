package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPGHost     = "127.0.0.1"
	DefaultPGPort     = 5432
	DefaultPGUser     = "postgres"
	DefaultPGDatabase = "curator"
	DefaultPGSSLMode  = "disable"
	DefaultBotWSURL   = "ws://127.0.0.1:3001"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Bot      BotConfig      `toml:"bot"`
	Git      GitConfig      `toml:"git"`
	Archive  ArchiveConfig  `toml:"archive"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type PostgresConfig struct {
	Host     string `toml:"host" validate:"required"`
	Port     int    `toml:"port" validate:"gt=0,lte=65535"`
	User     string `toml:"user" validate:"required"`
	Password string `toml:"password"`
	Database string `toml:"database" validate:"required"`
	SSLMode  string `toml:"sslmode"`
}

// BotConfig points at the OneBot v11 websocket endpoint the bot connects to.
type BotConfig struct {
	WSURL       string `toml:"ws_url" validate:"required"`
	AccessToken string `toml:"access_token"`
}

// GitConfig drives the archive publisher. Empty RepositoryDir disables publishing.
type GitConfig struct {
	RepositoryDir string `toml:"repository_dir"`
	URL           string `toml:"url"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	UserEmail     string `toml:"user_email"`
}

// ArchiveConfig controls unattended archive publishing. PublishCron is a
// standard cron expression; empty disables the schedule.
type ArchiveConfig struct {
	PublishCron string `toml:"publish_cron"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Bot: BotConfig{
			WSURL: DefaultBotWSURL,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
