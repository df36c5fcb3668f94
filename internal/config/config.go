// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Daily     DailyConfig     `mapstructure:"daily"`
	Sessions  SessionsConfig  `mapstructure:"sessions"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// DailyConfig holds daily reward configuration.
type DailyConfig struct {
	Reward        int64 `mapstructure:"reward"`
	CooldownHours int   `mapstructure:"cooldown_hours"`
}

// SessionsConfig holds session engine configuration.
type SessionsConfig struct {
	// WaitWindow is how long a Waiting session accepts joins before the
	// start timer fires.
	WaitWindow time.Duration `mapstructure:"wait_window"`
	// TurnTimeout is the per-turn submission deadline.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
	// SweepInterval is how often the janitor resolves sessions whose
	// deadlines elapsed without a live timer (e.g. after a restart).
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	MaxEntryFee   int64         `mapstructure:"max_entry_fee"`
	Quiz          QuizConfig    `mapstructure:"quiz"`
	Duel          DuelConfig    `mapstructure:"duel"`
	HotPotato     PotatoConfig  `mapstructure:"hot_potato"`
	TreasureHunt  HuntConfig    `mapstructure:"treasure_hunt"`
}

// QuizConfig holds quiz session configuration.
type QuizConfig struct {
	Turns      int   `mapstructure:"turns"`
	SpeedBonus int64 `mapstructure:"speed_bonus"`
}

// DuelConfig holds duel session configuration.
type DuelConfig struct {
	BestOf int `mapstructure:"best_of"`
}

// PotatoConfig holds hot-potato session configuration.
type PotatoConfig struct {
	Penalty int64 `mapstructure:"penalty"`
}

// HuntConfig holds treasure-hunt session configuration.
type HuntConfig struct {
	Turns int `mapstructure:"turns"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, SESSIONS_WAIT_WINDOW.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can provide all config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gamebot")
	v.SetDefault("database.name", "gamebot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("daily.reward", 500)
	v.SetDefault("daily.cooldown_hours", 24)

	v.SetDefault("sessions.wait_window", "60s")
	v.SetDefault("sessions.turn_timeout", "30s")
	v.SetDefault("sessions.sweep_interval", "15s")
	v.SetDefault("sessions.max_entry_fee", 1000)
	v.SetDefault("sessions.quiz.turns", 5)
	v.SetDefault("sessions.quiz.speed_bonus", 5)
	v.SetDefault("sessions.duel.best_of", 3)
	v.SetDefault("sessions.hot_potato.penalty", 200)
	v.SetDefault("sessions.treasure_hunt.turns", 4)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
