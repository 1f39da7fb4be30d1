package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GitHubConfig holds settings for the GitHub API client.
type GitHubConfig struct {
	// APIURL is the REST API root (https://api.github.com for github.com).
	APIURL string `mapstructure:"api_url" yaml:"api_url"`

	// WebURL is the browser root used to build item links.
	WebURL string `mapstructure:"web_url" yaml:"web_url"`

	// TokenEnv names the environment variable holding the access token.
	TokenEnv string `mapstructure:"token_env" yaml:"token_env"`

	// TokenRef, when set, takes precedence over TokenEnv
	// (e.g. "keyring:github-token").
	TokenRef string `mapstructure:"token_ref" yaml:"token_ref"`

	// TokenExpiresAtEnv names the environment variable holding the token
	// expiry as an RFC3339 timestamp.
	TokenExpiresAtEnv string `mapstructure:"token_expires_at_env" yaml:"token_expires_at_env"`

	// WatchedRepos is the explicit owner/name watch list used when the
	// store has none.
	WatchedRepos []string `mapstructure:"watched_repos" yaml:"watched_repos"`

	// ItemLimit caps how many issues and pull requests are fetched per repository.
	ItemLimit int `mapstructure:"item_limit" yaml:"item_limit"`

	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// FetchConcurrency bounds parallel repository fetches. 1 fetches sequentially.
	FetchConcurrency int `mapstructure:"fetch_concurrency" yaml:"fetch_concurrency"`
}

// MonitoringConfig holds settings for the reconciliation pass.
type MonitoringConfig struct {
	Database           string `mapstructure:"database" yaml:"database"`
	AutoWatchUserRepos bool   `mapstructure:"auto_watch_user_repos" yaml:"auto_watch_user_repos"`
	MaxReposToWatch    int    `mapstructure:"max_repos_to_watch" yaml:"max_repos_to_watch"`

	// Schedule is a cron expression or descriptor (e.g. "@every 20m")
	// used by daemon mode.
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// TelegramConfig holds settings for the Telegram transport.
type TelegramConfig struct {
	BotTokenEnv string  `mapstructure:"bot_token_env" yaml:"bot_token_env"`
	BotTokenRef string  `mapstructure:"bot_token_ref" yaml:"bot_token_ref"`
	ChatIDEnv   string  `mapstructure:"chat_id_env" yaml:"chat_id_env"`
	ChatID      string  `mapstructure:"chat_id" yaml:"chat_id"`
	RatePerSec  float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
}

// NATSConfig holds settings for the NATS transport.
type NATSConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`

	// JetStream publishes through a stream and waits for its ack; the
	// notification ID is sent as Nats-Msg-Id so redeliveries are dropped.
	JetStream bool `mapstructure:"jetstream" yaml:"jetstream"`
}

// RedisConfig holds settings for the Redis list transport.
type RedisConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	PasswordEnv string `mapstructure:"password_env" yaml:"password_env"`
	DB          int    `mapstructure:"db" yaml:"db"`
	Key         string `mapstructure:"key" yaml:"key"`
}

// MailboxConfig holds settings for the IMAP mailbox transport.
type MailboxConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        string `mapstructure:"port" yaml:"port"`
	Username    string `mapstructure:"username" yaml:"username"`
	PasswordRef string `mapstructure:"password_ref" yaml:"password_ref"`
	TLS         bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox     string `mapstructure:"mailbox" yaml:"mailbox"`
	From        string `mapstructure:"from" yaml:"from"`
	To          string `mapstructure:"to" yaml:"to"`
}

// DeliveryConfig holds settings for outbox delivery.
type DeliveryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Transport selects the channel: telegram, nats, redis, mailbox or log.
	Transport string `mapstructure:"transport" yaml:"transport"`

	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`

	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox" yaml:"mailbox"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	GitHub     GitHubConfig     `mapstructure:"github" yaml:"github"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Delivery   DeliveryConfig   `mapstructure:"delivery" yaml:"delivery"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ghwatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "ghwatch", "config.yaml")
}

// DefaultDatabasePath returns the default SQLite database location.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ghwatch.db")
	}
	return filepath.Join(home, ".local", "share", "ghwatch", "ghwatch.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		GitHub: GitHubConfig{
			APIURL:            "https://api.github.com",
			WebURL:            "https://github.com",
			TokenEnv:          "GITHUB_TOKEN",
			TokenExpiresAtEnv: "GITHUB_TOKEN_EXPIRES_AT",
			WatchedRepos:      []string{},
			ItemLimit:         50,
			RequestsPerSecond: 5,
			Timeout:           30 * time.Second,
			FetchConcurrency:  1,
		},
		Monitoring: MonitoringConfig{
			Database:           DefaultDatabasePath(),
			AutoWatchUserRepos: true,
			MaxReposToWatch:    20,
			Schedule:           "@every 20m",
		},
		Delivery: DeliveryConfig{
			Enabled:        true,
			Transport:      "telegram",
			MaxAttempts:    3,
			AttemptTimeout: 10 * time.Second,
			RetryDelay:     time.Second,
			Telegram: TelegramConfig{
				BotTokenEnv: "TELEGRAM_BOT_TOKEN",
				ChatIDEnv:   "TELEGRAM_CHAT_ID",
				RatePerSec:  1,
			},
			NATS: NATSConfig{
				URL:     "nats://127.0.0.1:4222",
				Subject: "ghwatch.notifications",
			},
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "ghwatch:notifications",
			},
			Mailbox: MailboxConfig{
				Port:    "993",
				TLS:     true,
				Mailbox: "INBOX",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Listen: ":9108",
		},
	}
}

// setDefaults mirrors DefaultAppConfig into viper so missing keys resolve.
func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.web_url", d.GitHub.WebURL)
	v.SetDefault("github.token_env", d.GitHub.TokenEnv)
	v.SetDefault("github.token_expires_at_env", d.GitHub.TokenExpiresAtEnv)
	v.SetDefault("github.item_limit", d.GitHub.ItemLimit)
	v.SetDefault("github.requests_per_second", d.GitHub.RequestsPerSecond)
	v.SetDefault("github.timeout", d.GitHub.Timeout)
	v.SetDefault("github.fetch_concurrency", d.GitHub.FetchConcurrency)
	v.SetDefault("monitoring.database", d.Monitoring.Database)
	v.SetDefault("monitoring.auto_watch_user_repos", d.Monitoring.AutoWatchUserRepos)
	v.SetDefault("monitoring.max_repos_to_watch", d.Monitoring.MaxReposToWatch)
	v.SetDefault("monitoring.schedule", d.Monitoring.Schedule)
	v.SetDefault("delivery.enabled", d.Delivery.Enabled)
	v.SetDefault("delivery.transport", d.Delivery.Transport)
	v.SetDefault("delivery.max_attempts", d.Delivery.MaxAttempts)
	v.SetDefault("delivery.attempt_timeout", d.Delivery.AttemptTimeout)
	v.SetDefault("delivery.retry_delay", d.Delivery.RetryDelay)
	v.SetDefault("delivery.telegram.bot_token_env", d.Delivery.Telegram.BotTokenEnv)
	v.SetDefault("delivery.telegram.chat_id_env", d.Delivery.Telegram.ChatIDEnv)
	v.SetDefault("delivery.telegram.rate_per_sec", d.Delivery.Telegram.RatePerSec)
	v.SetDefault("delivery.nats.url", d.Delivery.NATS.URL)
	v.SetDefault("delivery.nats.subject", d.Delivery.NATS.Subject)
	v.SetDefault("delivery.nats.jetstream", d.Delivery.NATS.JetStream)
	v.SetDefault("delivery.redis.addr", d.Delivery.Redis.Addr)
	v.SetDefault("delivery.redis.key", d.Delivery.Redis.Key)
	v.SetDefault("delivery.mailbox.port", d.Delivery.Mailbox.Port)
	v.SetDefault("delivery.mailbox.tls", d.Delivery.Mailbox.TLS)
	v.SetDefault("delivery.mailbox.mailbox", d.Delivery.Mailbox.Mailbox)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
}

// NewViper returns a viper instance bound to the YAML file at path with
// all defaults applied. Daemon mode keeps the instance to watch the file.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := NewViper(path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return DefaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	return DecodeConfig(v)
}

// DecodeConfig unmarshals an already-read viper instance and validates it.
func DecodeConfig(v *viper.Viper) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", v.ConfigFileUsed(), err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", v.ConfigFileUsed(), err)
	}
	return cfg, nil
}

// normalize clamps zero values that would make the pass misbehave.
func (c *AppConfig) normalize() {
	if c.GitHub.ItemLimit <= 0 {
		c.GitHub.ItemLimit = 50
	}
	if c.GitHub.ItemLimit > 100 {
		c.GitHub.ItemLimit = 100
	}
	if c.GitHub.FetchConcurrency <= 0 {
		c.GitHub.FetchConcurrency = 1
	}
	if c.GitHub.Timeout <= 0 {
		c.GitHub.Timeout = 30 * time.Second
	}
	if c.Monitoring.MaxReposToWatch <= 0 {
		c.Monitoring.MaxReposToWatch = 20
	}
	if c.Delivery.MaxAttempts <= 0 {
		c.Delivery.MaxAttempts = 3
	}
	if c.Delivery.AttemptTimeout <= 0 {
		c.Delivery.AttemptTimeout = 10 * time.Second
	}
	if c.Delivery.RetryDelay < 0 {
		c.Delivery.RetryDelay = 0
	}
	if strings.HasPrefix(c.Monitoring.Database, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.Monitoring.Database = filepath.Join(home, c.Monitoring.Database[2:])
		}
	}
	for i, r := range c.GitHub.WatchedRepos {
		c.GitHub.WatchedRepos[i] = strings.TrimSpace(r)
	}
}

// Validate reports configuration errors that cannot be defaulted away.
func (c *AppConfig) Validate() error {
	for _, r := range c.GitHub.WatchedRepos {
		if !ValidRepoName(r) {
			return fmt.Errorf("github.watched_repos: %q is not owner/name", r)
		}
	}
	switch c.Delivery.Transport {
	case "telegram", "nats", "redis", "mailbox", "log":
	default:
		return fmt.Errorf("delivery.transport: unknown transport %q", c.Delivery.Transport)
	}
	if strings.TrimSpace(c.Monitoring.Database) == "" {
		return fmt.Errorf("monitoring.database must not be empty")
	}
	return nil
}

// ValidRepoName reports whether name has the owner/name shape.
func ValidRepoName(name string) bool {
	owner, repo, ok := strings.Cut(name, "/")
	return ok && owner != "" && repo != "" && !strings.ContainsAny(repo, "/# ")
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("github", cfg.GitHub)
	v.Set("monitoring", cfg.Monitoring)
	v.Set("delivery", cfg.Delivery)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
