package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Config struct {
	Logger  Logger  `yaml:"logger"`
	Storage Storage `yaml:"storage"`
	Auth    Auth    `yaml:"auth"`
	Listen  string  `yaml:"listen"`
	Admin   Admin   `yaml:"admin"`
	CORS    CORS    `yaml:"cors"`
	Ranking Ranking `yaml:"ranking"`
	Metrics Metrics `yaml:"metrics"`
}

type Logger struct {
	Level string `yaml:"level"`
}

type Storage struct {
	Database string `yaml:"database"`
}

type Auth struct {
	JWT    JWT    `yaml:"jwt"`
	Local  Local  `yaml:"local"`
	GitLab GitLab `yaml:"gitlab"`
}

// Local defines configuration for username/password authentication.
type Local struct {
	Enabled bool `yaml:"enabled"`
}

// GitLab configures single sign-on against a GitLab instance acting as an
// OpenID Connect provider.
type GitLab struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	// FrontendCallbackURL receives the issued token as ?token=; when empty the
	// callback answers with JSON.
	FrontendCallbackURL string `yaml:"frontend_callback_url"`
}

type JWT struct {
	Secret      string `yaml:"secret"`
	ExpireHours int    `yaml:"expire_hours"`
}

type Admin struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Ranking tunes the circuit leaderboard recompute.
type Ranking struct {
	MaxConcurrentUpdates int `yaml:"max_concurrent_updates"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "data/garage.db"
	}
	c.Auth.GitLab.URL = strings.TrimSuffix(c.Auth.GitLab.URL, "/")
	if c.Auth.JWT.ExpireHours <= 0 {
		c.Auth.JWT.ExpireHours = 72
	}
	if c.Admin.Enabled && c.Admin.Listen == "" {
		c.Admin.Listen = "127.0.0.1:8081"
	}
	if c.Ranking.MaxConcurrentUpdates <= 0 {
		c.Ranking.MaxConcurrentUpdates = 8
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.Auth.JWT.Secret == "" {
		return fmt.Errorf("auth.jwt.secret must be set")
	}
	if !c.Auth.Local.Enabled && !c.Auth.GitLab.Enabled {
		return fmt.Errorf("at least one of auth.local or auth.gitlab must be enabled")
	}
	if g := c.Auth.GitLab; g.Enabled && (g.URL == "" || g.ClientID == "" || g.RedirectURI == "") {
		return fmt.Errorf("auth.gitlab requires url, client_id and redirect_uri")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}
	if c.Admin.Enabled && c.Admin.Listen == c.Listen {
		return fmt.Errorf("admin.listen must differ from listen (%s)", c.Listen)
	}
	return nil
}
