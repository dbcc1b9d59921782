package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultContextWindow is the token budget reported when nothing overrides it.
	DefaultContextWindow = 160000
	DefaultAddr          = ":3001"
	DefaultProcessBinary = "cursor-agent"
	DefaultStreamModel   = "claude-sonnet-4-5"
	DefaultMaxTokens     = 8192
)

// Config is the on-disk configuration of the session hub.
type Config struct {
	Addr          string        `yaml:"addr"`
	Tokens        []string      `yaml:"tokens,omitempty"`
	ProjectsDir   string        `yaml:"projects_dir"`
	ContextWindow int           `yaml:"context_window"`
	LogLevel      string        `yaml:"log_level,omitempty"`
	Shell         string        `yaml:"shell,omitempty"`
	Stream        StreamConfig  `yaml:"stream"`
	Process       ProcessConfig `yaml:"process"`
	Notify        NotifyConfig  `yaml:"notify,omitempty"`
}

// StreamConfig configures the SDK-backed provider.
type StreamConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// ProcessConfig configures the CLI-backed provider.
type ProcessConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

// NotifyConfig selects where session-finished notifications go.
type NotifyConfig struct {
	Desktop  bool            `yaml:"desktop,omitempty"`
	Sound    bool            `yaml:"sound,omitempty"`
	Hook     string          `yaml:"hook,omitempty"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
	// Statuses limits notifications to these terminal statuses. Empty means
	// completed and failed.
	Statuses []string `yaml:"statuses,omitempty"`
}

// WebhookConfig is one webhook target. Format is one of slack, feishu,
// dingtalk, telegram or custom.
type WebhookConfig struct {
	URL    string            `yaml:"url"`
	Format string            `yaml:"format,omitempty"`
	Extra  map[string]string `yaml:"extra,omitempty"`
}

// Enabled reports whether any notification target is configured.
func (n NotifyConfig) Enabled() bool {
	return n.Desktop || n.Hook != "" || len(n.Webhooks) > 0
}

// ConfigPath is where LoadConfig reads from when no explicit path is given.
var ConfigPath string

func init() {
	homeDir, _ := os.UserHomeDir()
	ConfigPath = filepath.Join(homeDir, ".sessionhub", "config.yaml")
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Addr:          DefaultAddr,
		ProjectsDir:   filepath.Join(homeDir, ".claude", "projects"),
		ContextWindow: DefaultContextWindow,
		Stream: StreamConfig{
			Model:     DefaultStreamModel,
			MaxTokens: DefaultMaxTokens,
		},
		Process: ProcessConfig{
			Command: DefaultProcessBinary,
		},
	}
}

// LoadConfig reads path (or ConfigPath when empty), fills unset fields with
// defaults and applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.fillDefaults()
	return cfg, nil
}

// ReadFile reads path (or ConfigPath when empty) over the defaults without
// consulting the environment. Use it before SaveConfig so overrides from the
// environment are never persisted.
func ReadFile(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes the config over its current values. A
// context_window that is not a positive integer leaves the current value.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config
	if value.Kind != yaml.MappingNode {
		return value.Decode((*plain)(c))
	}

	node := *value
	node.Content = nil
	contextWindow := ""
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		if key.Value == "context_window" {
			contextWindow = val.Value
			continue
		}
		node.Content = append(node.Content, key, val)
	}
	if err := node.Decode((*plain)(c)); err != nil {
		return err
	}
	c.ContextWindow = ParseContextWindow(contextWindow, c.ContextWindow)
	return nil
}

// SaveConfig writes cfg as YAML, creating the parent directory.
func SaveConfig(path string, cfg *Config) error {
	if path == "" {
		path = ConfigPath
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SESSIONHUB_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SESSIONHUB_TOKENS"); v != "" {
		c.Tokens = nil
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				c.Tokens = append(c.Tokens, t)
			}
		}
	}
	if v := os.Getenv("SESSIONHUB_PROJECTS_DIR"); v != "" {
		c.ProjectsDir = v
	}
	c.ContextWindow = ParseContextWindow(os.Getenv("CONTEXT_WINDOW"), c.ContextWindow)
	if c.Stream.APIKey == "" {
		c.Stream.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Stream.BaseURL == "" {
		c.Stream.BaseURL = os.Getenv("ANTHROPIC_BASE_URL")
	}
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ProjectsDir == "" {
		c.ProjectsDir = d.ProjectsDir
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = d.ContextWindow
	}
	if c.Stream.Model == "" {
		c.Stream.Model = d.Stream.Model
	}
	if c.Stream.MaxTokens <= 0 {
		c.Stream.MaxTokens = d.Stream.MaxTokens
	}
	if c.Process.Command == "" {
		c.Process.Command = d.Process.Command
	}
	if c.Shell == "" {
		c.Shell = os.Getenv("SHELL")
		if c.Shell == "" {
			c.Shell = "/bin/sh"
		}
	}
}

// ParseContextWindow returns raw as a positive integer, or fallback when raw
// is empty, non-numeric or not positive.
func ParseContextWindow(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
