// Package config provides configuration management for streamcored using
// Viper: a struct-tagged, section-oriented Config with defaults set
// before a file or environment variables are layered on top, sized for
// a larger surface than a handful of flat env vars — per-stream actor
// policy, ingest, storage backend selection.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultHTTPPort         = 8080
	defaultRTMPPort         = 1935
	defaultSourceTimeout    = 60 * time.Second
	defaultClientsTimeout   = 10 * time.Second
	defaultRetryLimit       = 3
	defaultGlueDeltaMS      = 500
	defaultInactivity       = 120 * time.Second
	defaultGCHintInterval   = 30 * time.Second
	defaultStopWaitConfig   = 5 * time.Second
	defaultTokenExpiration  = 1 * time.Hour
	defaultMaxTokenLifetime = 24 * time.Hour
	defaultHLSSegmentMS     = 2000
	defaultHLSMaxSegments   = 10
)

// Config holds all configuration for streamcored.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	RTMP    RTMPConfig    `mapstructure:"rtmp"`
	Storage StorageConfig `mapstructure:"storage"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Auth    AuthConfig    `mapstructure:"auth"`
	HLS     HLSConfig     `mapstructure:"hls"`
}

// ServerConfig holds the control-plane HTTP server's configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// RTMPConfig holds the RTMP ingest server's configuration.
type RTMPConfig struct {
	Addr       string `mapstructure:"addr"`
	PublicAddr string `mapstructure:"public_addr"`
}

// StorageConfig selects and configures the storage backend used for HLS
// segments and, for the file flavor, durable frame logs.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"` // "local" or "gcs"
	LocalDir      string `mapstructure:"local_dir"`
	GCSProjectID  string `mapstructure:"gcs_project_id"`
	GCSBucketName string `mapstructure:"gcs_bucket_name"`
	GCSBaseDir    string `mapstructure:"gcs_base_dir"`
}

// StreamConfig holds the per-stream actor defaults that main hands to
// the RTMP ingest server, which passes them to every actor it spawns.
type StreamConfig struct {
	SourceTimeout     time.Duration `mapstructure:"source_timeout"`
	ClientsTimeout    time.Duration `mapstructure:"clients_timeout"`
	RetryLimit        int           `mapstructure:"retry_limit"`
	GlueDeltaMS       int64         `mapstructure:"glue_delta_ms"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
	GCHintInterval    time.Duration `mapstructure:"gc_hint_interval"`
	StopWaitForConfig time.Duration `mapstructure:"stop_wait_for_config"`
	TimeshiftMS       int64         `mapstructure:"timeshift_ms"`
}

// AuthConfig holds publish-token policy.
type AuthConfig struct {
	DefaultTokenExpiration time.Duration `mapstructure:"default_token_expiration"`
	MaxTokenExpiration     time.Duration `mapstructure:"max_token_expiration"`
}

// HLSConfig holds the segmenter's packaging policy.
type HLSConfig struct {
	SegmentDuration time.Duration `mapstructure:"segment_duration"`
	MaxSegments     int           `mapstructure:"max_segments"`
}

// Load reads configuration from a file (if configPath is non-empty or a
// default config.yaml is found) and environment variables, in that order
// of increasing precedence. Environment variables are prefixed with
// STREAMCORE_ and use underscores for nesting, e.g.
// STREAMCORE_RTMP_ADDR=:1935.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/streamcore")
	}

	v.SetEnvPrefix("STREAMCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for every configuration option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", fmt.Sprintf(":%d", defaultHTTPPort))

	v.SetDefault("rtmp.addr", fmt.Sprintf(":%d", defaultRTMPPort))
	v.SetDefault("rtmp.public_addr", fmt.Sprintf("rtmp://localhost:%d", defaultRTMPPort))

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data/streams")

	v.SetDefault("stream.source_timeout", defaultSourceTimeout)
	v.SetDefault("stream.clients_timeout", defaultClientsTimeout)
	v.SetDefault("stream.retry_limit", defaultRetryLimit)
	v.SetDefault("stream.glue_delta_ms", defaultGlueDeltaMS)
	v.SetDefault("stream.inactivity_timeout", defaultInactivity)
	v.SetDefault("stream.gc_hint_interval", defaultGCHintInterval)
	v.SetDefault("stream.stop_wait_for_config", defaultStopWaitConfig)
	v.SetDefault("stream.timeshift_ms", 0)

	v.SetDefault("auth.default_token_expiration", defaultTokenExpiration)
	v.SetDefault("auth.max_token_expiration", defaultMaxTokenLifetime)

	v.SetDefault("hls.segment_duration", time.Duration(defaultHLSSegmentMS)*time.Millisecond)
	v.SetDefault("hls.max_segments", defaultHLSMaxSegments)
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required when storage.backend is \"local\"")
		}
	case "gcs":
		if c.Storage.GCSProjectID == "" || c.Storage.GCSBucketName == "" {
			return fmt.Errorf("storage.gcs_project_id and storage.gcs_bucket_name are required when storage.backend is \"gcs\"")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: local, gcs")
	}

	if c.Stream.RetryLimit < 0 {
		return fmt.Errorf("stream.retry_limit must not be negative")
	}

	return nil
}
