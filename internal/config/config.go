// Package config loads application configuration from environment variables
// and a YAML repository file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Repo describes one managed repository: its PR-number floor (PRs below the
// floor predate adoption and are ignored entirely) and the fixed pool of
// eligible reviewers.
type Repo struct {
	Name        string   `yaml:"name"`
	MinPRNumber int      `yaml:"min_pr_number"`
	Reviewers   []string `yaml:"reviewers"`
}

// Config holds the application configuration.
type Config struct {
	GitHubToken      string
	GitHubAppID      string
	GitHubAppKeyPath string
	WebhookSecret    string
	ListenAddr       string
	DBPath           string

	ReconcileInterval time.Duration
	ReminderThreshold time.Duration
	AssignAfter       time.Duration

	Repos           []Repo
	Timezones       map[string]string
	DefaultTimezone string
}

// repoFile is the YAML document at REVIEWFLOW_CONFIG.
type repoFile struct {
	DefaultTimezone string            `yaml:"default_timezone"`
	Timezones       map[string]string `yaml:"timezones"`
	Repositories    []Repo            `yaml:"repositories"`
}

// Repo returns the configuration for the given repository, or nil when the
// repository is not managed.
func (c *Config) Repo(fullName string) *Repo {
	for i := range c.Repos {
		if strings.EqualFold(c.Repos[i].Name, fullName) {
			return &c.Repos[i]
		}
	}
	return nil
}

// HasAppCredentials returns true when GitHub App credentials are configured.
// App credentials take priority over a personal access token.
func (c *Config) HasAppCredentials() bool {
	return c.GitHubAppID != "" && c.GitHubAppKeyPath != ""
}

// Load reads configuration from environment variables and the YAML repository
// file named by REVIEWFLOW_CONFIG (default reviewflow.yaml). Required:
// REVIEWFLOW_WEBHOOK_SECRET and either REVIEWFLOW_GITHUB_TOKEN or the pair
// REVIEWFLOW_GITHUB_APP_ID / REVIEWFLOW_GITHUB_APP_KEY. Optional with
// defaults: REVIEWFLOW_LISTEN_ADDR (127.0.0.1:8080), REVIEWFLOW_DB_PATH
// (reviewflow.db), REVIEWFLOW_RECONCILE_INTERVAL (1m),
// REVIEWFLOW_REMINDER_THRESHOLD (24h), REVIEWFLOW_ASSIGN_AFTER (10m).
func Load() (*Config, error) {
	secret := os.Getenv("REVIEWFLOW_WEBHOOK_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("REVIEWFLOW_WEBHOOK_SECRET is required")
	}

	cfg := &Config{
		GitHubToken:      os.Getenv("REVIEWFLOW_GITHUB_TOKEN"),
		GitHubAppID:      os.Getenv("REVIEWFLOW_GITHUB_APP_ID"),
		GitHubAppKeyPath: os.Getenv("REVIEWFLOW_GITHUB_APP_KEY"),
		WebhookSecret:    secret,
		ListenAddr:       "127.0.0.1:8080",
		DBPath:           "reviewflow.db",

		ReconcileInterval: 1 * time.Minute,
		ReminderThreshold: 24 * time.Hour,
		AssignAfter:       10 * time.Minute,
	}

	if cfg.GitHubToken == "" && !cfg.HasAppCredentials() {
		return nil, fmt.Errorf("either REVIEWFLOW_GITHUB_TOKEN or REVIEWFLOW_GITHUB_APP_ID and REVIEWFLOW_GITHUB_APP_KEY are required")
	}

	if v, ok := os.LookupEnv("REVIEWFLOW_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("REVIEWFLOW_DB_PATH"); ok {
		cfg.DBPath = v
	}

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{"REVIEWFLOW_RECONCILE_INTERVAL", &cfg.ReconcileInterval},
		{"REVIEWFLOW_REMINDER_THRESHOLD", &cfg.ReminderThreshold},
		{"REVIEWFLOW_ASSIGN_AFTER", &cfg.AssignAfter},
	} {
		v, ok := os.LookupEnv(d.env)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s has invalid duration %q: %w", d.env, v, err)
		}
		*d.dst = parsed
	}

	path := "reviewflow.yaml"
	if v, ok := os.LookupEnv("REVIEWFLOW_CONFIG"); ok {
		path = v
	}
	if err := cfg.loadRepoFile(path); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadRepoFile parses the YAML repository file into the Config.
func (c *Config) loadRepoFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var file repoFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if len(file.Repositories) == 0 {
		return fmt.Errorf("config file %s defines no repositories", path)
	}

	for _, repo := range file.Repositories {
		if repo.Name == "" || !strings.Contains(repo.Name, "/") {
			return fmt.Errorf("config file %s: repository name %q is not owner/repo", path, repo.Name)
		}
		if len(repo.Reviewers) == 0 {
			return fmt.Errorf("config file %s: repository %s has no reviewers", path, repo.Name)
		}
	}

	c.Repos = file.Repositories
	c.Timezones = file.Timezones
	if c.Timezones == nil {
		c.Timezones = map[string]string{}
	}

	c.DefaultTimezone = file.DefaultTimezone
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}

	return nil
}
