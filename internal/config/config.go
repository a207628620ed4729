// Package config loads recorder settings from flags, HLSDUMP_* environment
// variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agleyzer/hlsdump/internal/catalog"
	"github.com/agleyzer/hlsdump/internal/cluster"
	"github.com/agleyzer/hlsdump/internal/segment"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "Apple-iPhone5C2/1001.405"

// EnvPrefix prefixes every environment variable, e.g. HLSDUMP_RETRY_RATE.
const EnvPrefix = "HLSDUMP"

// Config is the recorder configuration. Keys use the flag spelling.
type Config struct {
	URL    string `mapstructure:"url"`
	Folder string `mapstructure:"folder"`

	NamePrefix string `mapstructure:"name-prefix"`
	UserAgent  string `mapstructure:"user-agent"`
	Variant    int    `mapstructure:"variant"`

	PlaylistAttempts int           `mapstructure:"playlist-attempts"`
	PlaylistTimeout  time.Duration `mapstructure:"playlist-timeout"`
	RetryRate        float64       `mapstructure:"retry-rate"`
	DrainTimeout     time.Duration `mapstructure:"drain-timeout"`

	Listen  string `mapstructure:"listen"`
	Catalog string `mapstructure:"catalog"`

	Verbose   bool   `mapstructure:"verbose"`
	LogFormat string `mapstructure:"log-format"`

	RaftID    string   `mapstructure:"raft-id"`
	RaftBind  string   `mapstructure:"raft-bind"`
	RaftPeers []string `mapstructure:"raft-peers"`
}

// New returns a viper instance with defaults and environment lookup set up.
// Callers bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	// Every key needs a default for AutomaticEnv to be consulted by Unmarshal.
	v.SetDefault("url", "")
	v.SetDefault("folder", "")
	v.SetDefault("name-prefix", "")
	v.SetDefault("user-agent", DefaultUserAgent)
	v.SetDefault("variant", -1)
	v.SetDefault("playlist-attempts", 3)
	v.SetDefault("playlist-timeout", 30*time.Second)
	v.SetDefault("retry-rate", 0.0)
	v.SetDefault("drain-timeout", 10*time.Second)
	v.SetDefault("catalog", catalog.DefaultName)
	v.SetDefault("listen", "")
	v.SetDefault("verbose", false)
	v.SetDefault("log-format", "text")
	v.SetDefault("raft-id", "")
	v.SetDefault("raft-bind", "")
	v.SetDefault("raft-peers", []string{})

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file named by the "config" key, then
// decodes and validates the merged settings.
func Load(v *viper.Viper) (*Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration and fills in derived defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("playlist url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid playlist url %q: %w", c.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("playlist url %q must be http or https", c.URL)
	}

	if c.Folder == "" {
		return errors.New("folder is required")
	}

	if c.PlaylistAttempts == 0 {
		c.PlaylistAttempts = 3
	}
	if c.PlaylistAttempts < 0 {
		return fmt.Errorf("playlist-attempts must be positive, got %d", c.PlaylistAttempts)
	}
	if c.PlaylistTimeout < 0 {
		return fmt.Errorf("playlist-timeout must not be negative, got %s", c.PlaylistTimeout)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain-timeout must not be negative, got %s", c.DrainTimeout)
	}
	if c.RetryRate < 0 {
		return fmt.Errorf("retry-rate must not be negative, got %g", c.RetryRate)
	}

	switch c.LogFormat {
	case "":
		c.LogFormat = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log-format must be text or json, got %q", c.LogFormat)
	}

	if c.NamePrefix == "" {
		c.NamePrefix = segment.DefaultPrefix(c.URL)
	}
	if strings.ContainsRune(c.NamePrefix, filepath.Separator) {
		return fmt.Errorf("name-prefix %q must not contain a path separator", c.NamePrefix)
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	if c.Catalog != "" && !filepath.IsAbs(c.Catalog) {
		c.Catalog = filepath.Join(c.Folder, c.Catalog)
	}

	if c.Clustered() {
		cc := c.ClusterConfig()
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("cluster: %w", err)
		}
	}
	return nil
}

// Clustered reports whether any raft setting was given.
func (c *Config) Clustered() bool {
	return c.RaftID != "" || c.RaftBind != "" || len(c.RaftPeers) > 0
}

// ClusterConfig returns the raft node configuration.
func (c *Config) ClusterConfig() cluster.Config {
	return cluster.Config{
		RaftID:      c.RaftID,
		BindAddr:    c.RaftBind,
		Peers:       c.RaftPeers,
		PlaylistURL: c.URL,
		Verbose:     c.Verbose,
	}
}
