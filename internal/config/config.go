// Package config loads chaba's YAML configuration.
//
// Values are layered: built-in defaults, then the first configuration file
// found, then CHABA_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iambrandonn/chaba/internal/logging"
)

// FileName is the configuration file looked up in the working directory and
// in the user configuration directory.
const FileName = "chaba.yaml"

// Config is the complete chaba configuration.
type Config struct {
	Worktree WorktreeConfig `koanf:"worktree" yaml:"worktree"`
	Sandbox  SandboxConfig  `koanf:"sandbox" yaml:"sandbox"`
	Agents   AgentsConfig   `koanf:"agents" yaml:"agents"`
	Hooks    HooksConfig    `koanf:"hooks" yaml:"hooks"`
	GitHub   GitHubConfig   `koanf:"github" yaml:"github,omitempty"`
	State    StateConfig    `koanf:"state" yaml:"state"`
	Log      logging.Config `koanf:"log" yaml:"log"`
}

// WorktreeConfig controls where review worktrees are created.
type WorktreeConfig struct {
	BaseDir        string `koanf:"base_dir" yaml:"base_dir"`
	NamingTemplate string `koanf:"naming_template" yaml:"naming_template"`
	Remote         string `koanf:"remote" yaml:"remote"`
}

// SandboxConfig controls preparation of new worktrees.
type SandboxConfig struct {
	AutoInstallDeps    bool       `koanf:"auto_install_deps" yaml:"auto_install_deps"`
	CopyEnvFromMain    bool       `koanf:"copy_env_from_main" yaml:"copy_env_from_main"`
	AdditionalEnvFiles []string   `koanf:"additional_env_files" yaml:"additional_env_files"`
	Node               NodeConfig `koanf:"node" yaml:"node"`
	Port               PortConfig `koanf:"port" yaml:"port"`
}

// NodeConfig holds Node.js specific settings.
type NodeConfig struct {
	PackageManager string `koanf:"package_manager" yaml:"package_manager"`
}

// PortConfig is the inclusive range ports are assigned from.
type PortConfig struct {
	Enabled    bool `koanf:"enabled" yaml:"enabled"`
	RangeStart int  `koanf:"range_start" yaml:"range_start"`
	RangeEnd   int  `koanf:"range_end" yaml:"range_end"`
}

// AgentsConfig controls AI review agents.
type AgentsConfig struct {
	Enabled         bool     `koanf:"enabled" yaml:"enabled"`
	DefaultAgents   []string `koanf:"default_agents" yaml:"default_agents"`
	ThoroughAgents  []string `koanf:"thorough_agents" yaml:"thorough_agents"`
	TimeoutSeconds  int      `koanf:"timeout" yaml:"timeout"`
	Parallel        bool     `koanf:"parallel" yaml:"parallel"`
	MetricsTextfile string   `koanf:"metrics_textfile" yaml:"metrics_textfile,omitempty"`
}

// Timeout returns the per-agent timeout.
func (a AgentsConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// HooksConfig holds lifecycle hook commands.
type HooksConfig struct {
	PostCreate string `koanf:"post_create" yaml:"post_create,omitempty"`
}

// GitHubConfig enables API based pull request lookups.
type GitHubConfig struct {
	Token string `koanf:"token" yaml:"token,omitempty"`
}

// StateConfig locates the state file and history journal.
type StateConfig struct {
	Path        string `koanf:"path" yaml:"path"`
	HistoryPath string `koanf:"history_path" yaml:"history_path"`
	MaxRetries  int    `koanf:"max_retries" yaml:"max_retries"`
}

// Default returns the built-in configuration. Paths keep their "~" prefix
// until Load expands them.
func Default() *Config {
	return &Config{
		Worktree: WorktreeConfig{
			BaseDir:        "~/reviews",
			NamingTemplate: "pr-{pr}",
			Remote:         "origin",
		},
		Sandbox: SandboxConfig{
			AutoInstallDeps:    true,
			CopyEnvFromMain:    true,
			AdditionalEnvFiles: []string{".env.local"},
			Node:               NodeConfig{PackageManager: "auto"},
			Port:               PortConfig{Enabled: true, RangeStart: 3000, RangeEnd: 4000},
		},
		Agents: AgentsConfig{
			Enabled:        true,
			DefaultAgents:  []string{"claude"},
			ThoroughAgents: []string{"claude", "codex", "gemini"},
			TimeoutSeconds: 600,
			Parallel:       true,
		},
		State: StateConfig{
			Path:        "~/.chaba/state.yaml",
			HistoryPath: "~/.chaba/history.ndjson",
			MaxRetries:  5,
		},
		Log: logging.DefaultConfig(),
	}
}

// Example renders the default configuration as YAML.
func Example() ([]byte, error) {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to render example config: %w", err)
	}
	return data, nil
}

// Render serializes c as YAML. The GitHub token is never included.
func (c *Config) Render() ([]byte, error) {
	out := *c
	out.GitHub = GitHubConfig{}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Worktree.BaseDir, &c.State.Path, &c.State.HistoryPath, &c.Agents.MetricsTextfile} {
		expanded, err := ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = expanded
	}
	return nil
}
