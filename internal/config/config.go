// Package config provides YAML configuration for the release watcher,
// covering the polled versions, workspace, storage, and the Jenkins endpoint.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired      = errors.New("config version is required")
	ErrNoTrackedVersions    = errors.New("at least one version must be tracked")
	ErrOwnerRequired        = errors.New("watch owner is required")
	ErrRepoTemplateRequired = errors.New("watch repository_template is required")
	ErrJenkinsURLRequired   = errors.New("jenkins base_url is required")
	ErrGitHubCredentials    = errors.New("GITHUB_USER and GITHUB_TOKEN must be set")
	ErrJenkinsCredentials   = errors.New("JENKINS_USER and JENKINS_TOKEN must be set")
)

// Defaults applied on load.
const (
	DefaultOwner          = "AdoptOpenJDK"
	DefaultRepoTemplate   = "openjdk%s-binaries"
	DefaultConcurrency    = 4
	DefaultTriggerTimeout = 30 * time.Second
)

// Config represents the top-level configuration structure.
type Config struct {
	Version   string          `yaml:"version"`
	Watch     WatchConfig     `yaml:"watch"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Storage   StorageConfig   `yaml:"storage"`
	Jenkins   JenkinsConfig   `yaml:"jenkins"`
}

// WatchConfig selects which upstream repositories are polled and how.
type WatchConfig struct {
	Owner              string   `yaml:"owner"`
	RepositoryTemplate string   `yaml:"repository_template"` // printf template taking the version
	Versions           []string `yaml:"versions"`
	IncludeEA          *bool    `yaml:"include_ea"` // pointer so an absent key defaults to true
	ForceRetest        bool     `yaml:"force_retest"`
}

// EAIncluded reports whether early-access releases are considered. Defaults
// to true when the key is absent.
func (w *WatchConfig) EAIncluded() bool {
	if w.IncludeEA == nil {
		return true
	}
	return *w.IncludeEA
}

// Repository resolves the binaries repository name for a tracked version.
func (w *WatchConfig) Repository(version string) string {
	return fmt.Sprintf(w.RepositoryTemplate, version)
}

// WorkspaceConfig locates the per-version timestamp files.
type WorkspaceConfig struct {
	Dir string `yaml:"dir"`
}

// StorageConfig configures the poll-cycle history database.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// JenkinsConfig configures the downstream job endpoint.
type JenkinsConfig struct {
	BaseURL        string `yaml:"base_url"`
	Concurrency    int    `yaml:"concurrency"`
	TriggerTimeout string `yaml:"trigger_timeout"`
}

// GetTriggerTimeout parses and returns the trigger timeout duration
func (j *JenkinsConfig) GetTriggerTimeout() time.Duration {
	if j.TriggerTimeout == "" {
		return DefaultTriggerTimeout
	}
	timeout, err := time.ParseDuration(j.TriggerTimeout)
	if err != nil {
		return DefaultTriggerTimeout
	}
	return timeout
}

// Credentials carries the basic-auth pairs read from the environment.
type Credentials struct {
	GitHubUser   string
	GitHubToken  string
	JenkinsUser  string
	JenkinsToken string
}

// LoadCredentials reads API credentials from the environment. Both pairs are
// required: the release API is queried with basic auth and Jenkins with an
// API token.
func LoadCredentials() (Credentials, error) {
	creds := Credentials{
		GitHubUser:   os.Getenv("GITHUB_USER"),
		GitHubToken:  os.Getenv("GITHUB_TOKEN"),
		JenkinsUser:  os.Getenv("JENKINS_USER"),
		JenkinsToken: os.Getenv("JENKINS_TOKEN"),
	}

	if creds.GitHubUser == "" || creds.GitHubToken == "" {
		return Credentials{}, ErrGitHubCredentials
	}
	if creds.JenkinsUser == "" || creds.JenkinsToken == "" {
		return Credentials{}, ErrJenkinsCredentials
	}

	return creds, nil
}

// LoadConfig loads and parses the watcher configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// applyDefaults fills in optional fields.
func (c *Config) applyDefaults() {
	if c.Watch.Owner == "" {
		c.Watch.Owner = DefaultOwner
	}
	if c.Watch.RepositoryTemplate == "" {
		c.Watch.RepositoryTemplate = DefaultRepoTemplate
	}
	if len(c.Watch.Versions) == 0 {
		c.Watch.Versions = []string{"8", "11"}
	}
	if c.Workspace.Dir == "" {
		c.Workspace.Dir = "workspace"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "releasewatch.db"
	}
	if c.Jenkins.Concurrency <= 0 {
		c.Jenkins.Concurrency = DefaultConcurrency
	}
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if len(c.Watch.Versions) == 0 {
		return ErrNoTrackedVersions
	}
	if c.Watch.Owner == "" {
		return ErrOwnerRequired
	}
	if c.Watch.RepositoryTemplate == "" {
		return ErrRepoTemplateRequired
	}
	if c.Jenkins.BaseURL == "" {
		return ErrJenkinsURLRequired
	}
	return nil
}

// DefaultConfig returns a configuration with the stock tracked versions.
// Used when no config file is present.
func DefaultConfig() *Config {
	cfg := &Config{Version: "1.0"}
	cfg.applyDefaults()
	return cfg
}
