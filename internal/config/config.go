// Package config provides configuration management for shiden using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultServerTimeout     = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxOpenConns      = 25
	defaultMaxIdleConns      = 10
	defaultConnMaxIdleTime   = 30 * time.Minute
	defaultFontName          = "OpenSans-Bold"
	defaultFontSize          = 36
	defaultAudioCodec        = "aac"
	defaultAudioBitrate      = "320k"
	defaultRetryFactor       = 2.0
	defaultRetryMinTimeout   = time.Second
	defaultRetryMaxTimeout   = 60 * time.Second
	defaultRetries           = 10
	defaultPublishTimeout    = 10 * time.Second
	defaultNotifyTimeout     = 30 * time.Second
	defaultHistoryRetention  = 30 * 24 * time.Hour
	defaultPruneSchedule     = "@daily"
	defaultAnilistURL        = "https://graphql.anilist.co"
	defaultKitsuURL          = "https://kitsu.io/api/edge/anime"
	defaultRelationsURL      = "https://relations.yuna.moe/api/ids"
	defaultErrorDocsURL      = "https://github.com/wizo06/Shiden#error-codes"
	defaultAnnouncementInput = "Airing"
	defaultAnnouncementOut   = "Airing [Hardsub]"
)

// Secret is a string that must never appear in logs.
// The observability package redacts every attribute of this type.
type Secret string

// String implements fmt.Stringer.
func (s Secret) String() string {
	return string(s)
}

// Config holds all configuration for the application.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	FFmpeg       FFmpegConfig       `mapstructure:"ffmpeg"`
	Rclone       RcloneConfig       `mapstructure:"rclone"`
	Broker       BrokerConfig       `mapstructure:"broker"`
	Notification NotificationConfig `mapstructure:"notification"`
	History      HistoryConfig      `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the API key allow-list. Keys are caller names, values are
// the keys they send in the Authorization header.
type AuthConfig struct {
	Keys map[string]Secret `mapstructure:"keys"`
}

// DatabaseConfig holds the job history database configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds local file locations.
type StorageConfig struct {
	// WorkspaceDir is the scratch directory owned by the job in flight.
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// QueueFile is the JSON file backing the persisted job queue.
	QueueFile string `mapstructure:"queue_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds media tool configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = auto-detect
	ProbePath  string `mapstructure:"probe_path"`  // empty = auto-detect
	FontsDir   string `mapstructure:"fonts_dir"`
	// MaxDuration caps the output duration of every encode (-t). Zero disables the cap.
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	DefaultFont     string        `mapstructure:"default_font"`
	DefaultFontSize float64       `mapstructure:"default_font_size"`
	AudioCodec      string        `mapstructure:"audio_codec"`
	AudioBitrate    string        `mapstructure:"audio_bitrate"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
}

// RcloneConfig holds remote storage configuration.
type RcloneConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // empty = auto-detect
	ConfigPath string `mapstructure:"config_path"` // passed as --config when set
	// Flags are appended to every copy invocation.
	Flags []string `mapstructure:"flags"`
	// DownloadSources are remotes searched in priority order; the first one holding the file wins.
	DownloadSources []string `mapstructure:"download_sources"`
	// UploadDestinations receive the output, in order.
	UploadDestinations []string `mapstructure:"upload_destinations"`
}

// BrokerConfig holds message broker configuration.
type BrokerConfig struct {
	Inbound  InboundConfig  `mapstructure:"inbound"`
	Outbound OutboundConfig `mapstructure:"outbound"`
	Retry    RetryConfig    `mapstructure:"retry"`
}

// InboundConfig configures the consumer side.
type InboundConfig struct {
	URL         Secret `mapstructure:"url"`
	Queue       string `mapstructure:"queue"`
	ConsumerTag string `mapstructure:"consumer_tag"`
	// CloseMessage is the reason an operator uses when force-closing the
	// connection to stop the worker for good.
	CloseMessage string             `mapstructure:"close_message"`
	Announcement AnnouncementConfig `mapstructure:"announcement"`
}

// AnnouncementConfig maps {show, episode} announcements onto jobs.
type AnnouncementConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	InputRoot  string `mapstructure:"input_root"`
	OutputRoot string `mapstructure:"output_root"`
}

// OutboundConfig configures completion messages published to the broker.
type OutboundConfig struct {
	URL        Secret        `mapstructure:"url"`
	Exchange   string        `mapstructure:"exchange"`
	RoutingKey string        `mapstructure:"routing_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RetryConfig is the broker reconnection policy.
type RetryConfig struct {
	Retries      int           `mapstructure:"retries"`
	Forever      bool          `mapstructure:"forever"`
	Factor       float64       `mapstructure:"factor"`
	MinTimeout   time.Duration `mapstructure:"min_timeout"`
	MaxTimeout   time.Duration `mapstructure:"max_timeout"`
	Randomize    bool          `mapstructure:"randomize"`
	MaxRetryTime time.Duration `mapstructure:"max_retry_time"` // zero = unbounded
}

// NotificationConfig holds webhook and metadata settings.
type NotificationConfig struct {
	Webhooks     []WebhookConfig `mapstructure:"webhooks"`
	Timeout      time.Duration   `mapstructure:"timeout"`
	ErrorDocsURL string          `mapstructure:"error_docs_url"`
	// Footer overrides the embed footer; empty uses the application version.
	Footer       string          `mapstructure:"footer"`
	Metadata     MetadataConfig  `mapstructure:"metadata"`
}

// WebhookConfig is a single Discord-compatible webhook.
type WebhookConfig struct {
	Name string `mapstructure:"name"`
	URL  Secret `mapstructure:"url"`
}

// MetadataConfig holds show metadata lookup endpoints.
type MetadataConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AnilistURL   string `mapstructure:"anilist_url"`
	KitsuURL     string `mapstructure:"kitsu_url"`
	RelationsURL string `mapstructure:"relations_url"`
}

// HistoryConfig controls the job run history.
type HistoryConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SHIDEN_ and use underscores for nesting.
// Example: SHIDEN_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./conf")
		v.AddConfigPath("/etc/shiden")
		v.AddConfigPath("$HOME/.shiden")
	}

	v.SetEnvPrefix("SHIDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return Unmarshal(v)
}

// Unmarshal decodes and validates the configuration held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	v.SetDefault("auth.keys", map[string]string{})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "shiden.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.workspace_dir", "./temp")
	v.SetDefault("storage.queue_file", "./queue.json")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.fonts_dir", "./assets")
	v.SetDefault("ffmpeg.max_duration", time.Duration(0))
	v.SetDefault("ffmpeg.default_font", defaultFontName)
	v.SetDefault("ffmpeg.default_font_size", defaultFontSize)
	v.SetDefault("ffmpeg.audio_codec", defaultAudioCodec)
	v.SetDefault("ffmpeg.audio_bitrate", defaultAudioBitrate)
	v.SetDefault("ffmpeg.probe_timeout", time.Duration(0))

	// Rclone defaults
	v.SetDefault("rclone.binary_path", "")
	v.SetDefault("rclone.config_path", "")
	v.SetDefault("rclone.flags", []string{})
	v.SetDefault("rclone.download_sources", []string{})
	v.SetDefault("rclone.upload_destinations", []string{})

	// Broker defaults
	v.SetDefault("broker.inbound.url", "")
	v.SetDefault("broker.inbound.queue", "shiden")
	v.SetDefault("broker.inbound.consumer_tag", "")
	v.SetDefault("broker.inbound.close_message", "")
	v.SetDefault("broker.inbound.announcement.enabled", false)
	v.SetDefault("broker.inbound.announcement.input_root", defaultAnnouncementInput)
	v.SetDefault("broker.inbound.announcement.output_root", defaultAnnouncementOut)
	v.SetDefault("broker.outbound.url", "")
	v.SetDefault("broker.outbound.exchange", "")
	v.SetDefault("broker.outbound.routing_key", "")
	v.SetDefault("broker.outbound.timeout", defaultPublishTimeout)
	v.SetDefault("broker.retry.retries", defaultRetries)
	v.SetDefault("broker.retry.forever", false)
	v.SetDefault("broker.retry.factor", defaultRetryFactor)
	v.SetDefault("broker.retry.min_timeout", defaultRetryMinTimeout)
	v.SetDefault("broker.retry.max_timeout", defaultRetryMaxTimeout)
	v.SetDefault("broker.retry.randomize", true)
	v.SetDefault("broker.retry.max_retry_time", time.Duration(0))

	// Notification defaults
	v.SetDefault("notification.timeout", defaultNotifyTimeout)
	v.SetDefault("notification.error_docs_url", defaultErrorDocsURL)
	v.SetDefault("notification.footer", "")
	v.SetDefault("notification.metadata.enabled", true)
	v.SetDefault("notification.metadata.anilist_url", defaultAnilistURL)
	v.SetDefault("notification.metadata.kitsu_url", defaultKitsuURL)
	v.SetDefault("notification.metadata.relations_url", defaultRelationsURL)

	// History defaults
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention", defaultHistoryRetention)
	v.SetDefault("history.prune_schedule", defaultPruneSchedule)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.WorkspaceDir == "" {
		return fmt.Errorf("storage.workspace_dir is required")
	}
	if c.Storage.QueueFile == "" {
		return fmt.Errorf("storage.queue_file is required")
	}
	if sameDir(c.Storage.WorkspaceDir, filepath.Dir(c.Storage.QueueFile)) {
		return fmt.Errorf("storage.queue_file must not live inside storage.workspace_dir")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.FFmpeg.MaxDuration < 0 {
		return fmt.Errorf("ffmpeg.max_duration must not be negative")
	}
	if c.FFmpeg.DefaultFontSize <= 0 {
		return fmt.Errorf("ffmpeg.default_font_size must be positive")
	}

	r := c.Broker.Retry
	if r.Retries < 0 {
		return fmt.Errorf("broker.retry.retries must not be negative")
	}
	if r.Factor < 1 {
		return fmt.Errorf("broker.retry.factor must be at least 1")
	}
	if r.MinTimeout <= 0 || r.MaxTimeout < r.MinTimeout {
		return fmt.Errorf("broker.retry.min_timeout must be positive and not exceed broker.retry.max_timeout")
	}

	for i, w := range c.Notification.Webhooks {
		if w.URL == "" {
			return fmt.Errorf("notification.webhooks[%d].url is required", i)
		}
	}

	if c.History.Enabled && c.History.Retention <= 0 {
		return fmt.Errorf("history.retention must be positive when history is enabled")
	}

	return nil
}

// ValidateWorker checks the settings only the broker worker needs.
func (c *Config) ValidateWorker() error {
	if c.Broker.Inbound.URL == "" {
		return fmt.Errorf("broker.inbound.url is required")
	}
	if c.Broker.Inbound.Queue == "" {
		return fmt.Errorf("broker.inbound.queue is required")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OutboundEnabled reports whether completion messages go to the broker.
func (c *BrokerConfig) OutboundEnabled() bool {
	return c.Outbound.URL != "" && c.Outbound.Exchange != ""
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return absA == absB
}
