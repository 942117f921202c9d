package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/migration"
	"github.com/rflorenc/esmigrate/internal/models"
)

// ClusterConfig is a named cluster in the config file.
type ClusterConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"` // may embed user:password
	Insecure bool   `yaml:"insecure"`
	CACert   string `yaml:"ca_cert"` // path to a PEM bundle
}

// Config holds all configuration (config file, overlaid by CLI flags).
type Config struct {
	Listen         string          `yaml:"listen"`
	Concurrency    int             `yaml:"concurrency"`
	PollInterval   time.Duration   `yaml:"poll_interval"`
	StallTimeout   time.Duration   `yaml:"stall_timeout"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	LockDir        string          `yaml:"lock_dir"`
	Clusters       []ClusterConfig `yaml:"clusters"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Listen:         ":8080",
		Concurrency:    migration.DefaultConcurrency,
		PollInterval:   migration.DefaultPollInterval,
		StallTimeout:   migration.DefaultStallTimeout,
		RequestTimeout: cluster.DefaultTimeout,
	}
}

// DefaultPath returns ~/.config/esmigrate/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(dir, "esmigrate", "config.yaml"), nil
}

// ExpandPath expands a leading ~ or ~/ to the user's home directory. Other
// users' homes (~name) are left alone.
func ExpandPath(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// Load reads a YAML config file over the defaults. An empty path selects
// DefaultPath, which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.LockDir, err = ExpandPath(cfg.LockDir); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.StallTimeout < 0 {
		return fmt.Errorf("stall_timeout must not be negative, got %s", c.StallTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	seen := make(map[string]bool)
	for i, cc := range c.Clusters {
		if cc.Name == "" || cc.URL == "" {
			return fmt.Errorf("clusters[%d]: name and url are required", i)
		}
		if seen[cc.Name] {
			return fmt.Errorf("clusters[%d]: duplicate name %q", i, cc.Name)
		}
		seen[cc.Name] = true
	}
	return nil
}

// Cluster turns a configured cluster into a models.Cluster, reading its CA
// bundle if one is set.
func (cc ClusterConfig) Cluster() (*models.Cluster, error) {
	c := models.NewCluster(cc.URL)
	c.Name = cc.Name
	c.Insecure = cc.Insecure
	if cc.CACert != "" {
		path, err := ExpandPath(cc.CACert)
		if err != nil {
			return nil, err
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cluster %s: reading ca_cert: %w", cc.Name, err)
		}
		c.CACert = string(pem)
	}
	return c, nil
}

// ResolveCluster returns the configured cluster named ref, or a cluster at
// address ref if no name matches.
func (c *Config) ResolveCluster(ref string) (*models.Cluster, error) {
	for _, cc := range c.Clusters {
		if cc.Name == ref {
			return cc.Cluster()
		}
	}
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("empty cluster address")
	}
	return models.NewCluster(ref), nil
}

// MigrationOptions returns the engine settings.
func (c *Config) MigrationOptions() migration.Options {
	opts := migration.DefaultOptions()
	opts.Concurrency = c.Concurrency
	opts.PollInterval = c.PollInterval
	opts.StallTimeout = c.StallTimeout
	opts.LockDir = c.LockDir
	return opts
}
