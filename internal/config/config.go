// Package config provides configuration management for ffhls using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort        = 8080
	defaultProbeTimeout      = 30 * time.Second
	defaultTempMaxAge        = time.Hour
	defaultHTTPTimeout       = 60 * time.Second
	defaultRetryAttempts     = 3
	defaultRetryDelay        = time.Second
	defaultSegmentLength     = 10
	defaultKeyFrameInterval  = 48
	defaultMaxDownloadSize   = 2 * 1024 * 1024 * 1024 // 2GiB
	defaultMonitorInterval   = 2 * time.Second
	defaultDiskDriverLocal   = "local"
	defaultDiskDriverMemory  = "memory"
	defaultDiskDriverHTTP    = "http"
	defaultLocalDiskRoot     = "./data"
	defaultConfigName        = "ffhls"
	defaultEnvironmentPrefix = "FFHLS"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	HLS     HLSConfig     `mapstructure:"hls"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds the playlist server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Disk         string        `mapstructure:"disk"` // disk the served playlists and keys live on
	MediaRoute   string        `mapstructure:"media_route"`
	KeyRoute     string        `mapstructure:"key_route"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StorageConfig holds disk and temporary directory configuration.
type StorageConfig struct {
	TempRoot    string                `mapstructure:"temp_root"` // empty = os.TempDir()
	TempMaxAge  time.Duration         `mapstructure:"temp_max_age"`
	DefaultDisk string                `mapstructure:"default_disk"`
	Disks       map[string]DiskConfig `mapstructure:"disks"`
}

// DiskConfig describes one named disk.
type DiskConfig struct {
	Driver  string            `mapstructure:"driver"` // local, memory, http
	Root    string            `mapstructure:"root"`
	BaseURL string            `mapstructure:"base_url"`
	Headers map[string]string `mapstructure:"headers"`
	// Stream passes HTTP inputs to ffmpeg by URL instead of downloading them first.
	Stream bool `mapstructure:"stream"`
	// MaxDownloadSize limits materialized downloads.
	// Supports human-readable values like "500MB", "2GiB", or raw byte counts.
	MaxDownloadSize ByteSize `mapstructure:"max_download_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath    string        `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = auto-detect)
	ProbePath     string        `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = auto-detect)
	Threads       int           `mapstructure:"threads"`     // 0 = let ffmpeg decide
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	LogLevel      string        `mapstructure:"log_level"`
	VerboseErrors bool          `mapstructure:"verbose_errors"` // include command line and stderr in error messages
	// MonitorProcess samples CPU and memory of the running ffmpeg process.
	MonitorProcess  bool          `mapstructure:"monitor_process"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// HTTPConfig holds the HTTP client configuration used by http disks.
type HTTPConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// HLSConfig holds export defaults.
type HLSConfig struct {
	SegmentLength    int  `mapstructure:"segment_length"`     // seconds
	KeyFrameInterval int  `mapstructure:"key_frame_interval"` // frames
	EndList          bool `mapstructure:"end_list"`
}

// MetricsConfig holds metrics output configuration.
type MetricsConfig struct {
	// Textfile is written in the node_exporter textfile format after each export (empty = disabled).
	Textfile string `mapstructure:"textfile"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with FFHLS_ and use underscores for nesting.
// Example: FFHLS_HLS_SEGMENT_LENGTH=4.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/ffhls")
		v.AddConfigPath("$HOME/.ffhls")
	}

	v.SetEnvPrefix(defaultEnvironmentPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v. Callers that
// bind command-line flags to their own viper instance use it instead of Load.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
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
	v.SetDefault("server.disk", defaultDiskDriverLocal)
	v.SetDefault("server.media_route", "/hls")
	v.SetDefault("server.key_route", "/keys")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)

	// Storage defaults
	v.SetDefault("storage.temp_root", "")
	v.SetDefault("storage.temp_max_age", defaultTempMaxAge)
	v.SetDefault("storage.default_disk", defaultDiskDriverLocal)
	v.SetDefault("storage.disks", map[string]any{
		defaultDiskDriverLocal: map[string]any{
			"driver": defaultDiskDriverLocal,
			"root":   defaultLocalDiskRoot,
		},
		defaultDiskDriverMemory: map[string]any{
			"driver": defaultDiskDriverMemory,
		},
	})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.threads", 0)
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.log_level", "info") // segment-open lines are only printed at info and above
	v.SetDefault("ffmpeg.verbose_errors", false)
	v.SetDefault("ffmpeg.monitor_process", false)
	v.SetDefault("ffmpeg.monitor_interval", defaultMonitorInterval)

	// HTTP client defaults
	v.SetDefault("http.timeout", defaultHTTPTimeout)
	v.SetDefault("http.retry_attempts", defaultRetryAttempts)
	v.SetDefault("http.retry_delay", defaultRetryDelay)
	v.SetDefault("http.user_agent", "ffhls")

	// HLS defaults
	v.SetDefault("hls.segment_length", defaultSegmentLength)
	v.SetDefault("hls.key_frame_interval", defaultKeyFrameInterval)
	v.SetDefault("hls.end_list", true)

	// Metrics defaults
	v.SetDefault("metrics.textfile", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.HLS.SegmentLength < 1 {
		return fmt.Errorf("hls.segment_length must be at least 1")
	}
	if c.HLS.KeyFrameInterval < 1 {
		return fmt.Errorf("hls.key_frame_interval must be at least 1")
	}

	validDrivers := map[string]bool{defaultDiskDriverLocal: true, defaultDiskDriverMemory: true, defaultDiskDriverHTTP: true}
	for name, disk := range c.Storage.Disks {
		if !validDrivers[disk.Driver] {
			return fmt.Errorf("storage.disks.%s.driver must be one of: local, memory, http", name)
		}
		if disk.Driver == defaultDiskDriverHTTP && disk.BaseURL == "" {
			return fmt.Errorf("storage.disks.%s.base_url is required for http disks", name)
		}
	}
	if _, ok := c.Storage.Disks[c.Storage.DefaultDisk]; !ok {
		return fmt.Errorf("storage.default_disk %q is not a configured disk", c.Storage.DefaultDisk)
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Disk returns the named disk configuration, falling back to the default disk when name is empty.
func (c *StorageConfig) Disk(name string) (string, DiskConfig, error) {
	if name == "" {
		name = c.DefaultDisk
	}
	disk, ok := c.Disks[name]
	if !ok {
		return name, DiskConfig{}, fmt.Errorf("disk %q is not configured", name)
	}
	return name, disk, nil
}

// DownloadLimit returns the maximum number of bytes materialized from this disk.
func (d DiskConfig) DownloadLimit() int64 {
	if d.MaxDownloadSize <= 0 {
		return defaultMaxDownloadSize
	}
	return d.MaxDownloadSize.Bytes()
}
