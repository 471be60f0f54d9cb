// Package config loads server configuration from YAML with environment
// overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName = "config.yml"
	AppDirName     = "scribe"
)

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server,omitempty"`
	Media      MediaConfig      `yaml:"media,omitempty"`
	Providers  ProvidersConfig  `yaml:"providers,omitempty"`
	Summarizer SummarizerConfig `yaml:"summarizer,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP listen port (default: 8080)
	Port int `yaml:"port,omitempty"`

	// APIKey for authentication (optional, if set all requests must include X-API-Key header)
	APIKey string `yaml:"api_key,omitempty"`

	// UploadDir is where uploaded media and segment files are written.
	UploadDir string `yaml:"upload_dir,omitempty"`

	// MaxConcurrent is the max number of jobs processed at once (default: 2)
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`
}

// MediaConfig holds ffmpeg/ffprobe settings.
type MediaConfig struct {
	FFmpegPath  string `yaml:"ffmpeg_path,omitempty"`
	FFprobePath string `yaml:"ffprobe_path,omitempty"`

	// SegmentBudgetMB is the default target segment size in MB (default: 10)
	SegmentBudgetMB int `yaml:"segment_budget_mb,omitempty"`

	// ProcessTimeout bounds every external process invocation (default: 10m)
	ProcessTimeout time.Duration `yaml:"process_timeout,omitempty"`
}

// ProvidersConfig holds transcription provider settings.
// API keys come from the environment, never from the config file.
type ProvidersConfig struct {
	// Batch is the request/response transcription endpoint (Deepgram-compatible).
	Batch BatchProviderConfig `yaml:"batch,omitempty"`

	// Inline is the multimodal generation endpoint (Gemini-compatible).
	Inline InlineProviderConfig `yaml:"inline,omitempty"`
}

// BatchProviderConfig configures the batch transcription endpoint.
type BatchProviderConfig struct {
	BaseURL      string `yaml:"base_url,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
}

// InlineProviderConfig configures the inline multimodal endpoint.
type InlineProviderConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxInlineBytes is the provider's inline payload ceiling after base64
	// encoding (default: 20MB).
	MaxInlineBytes int64 `yaml:"max_inline_bytes,omitempty"`
}

// SummarizerConfig selects the chat backend used for transcript summaries.
type SummarizerConfig struct {
	// Provider is "openai", "anthropic", or "" (summarization unavailable).
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// Secrets are API keys resolved from the environment.
type Secrets struct {
	BatchAPIKey     string
	InlineAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// LoadSecrets reads provider API keys from the environment.
func LoadSecrets() Secrets {
	return Secrets{
		BatchAPIKey:     os.Getenv("DEEPGRAM_API_KEY"),
		InlineAPIKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
	}
}

// ConfigDir returns the standard config directory.
// Windows would use %APPDATA%; elsewhere ~/.config/scribe/.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", AppDirName), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			UploadDir:     filepath.Join(os.TempDir(), "scribe-uploads"),
			MaxConcurrent: 2,
		},
		Media: MediaConfig{
			FFmpegPath:      "ffmpeg",
			FFprobePath:     "ffprobe",
			SegmentBudgetMB: 10,
			ProcessTimeout:  10 * time.Minute,
		},
		Providers: ProvidersConfig{
			Batch: BatchProviderConfig{
				BaseURL:      "https://api.deepgram.com",
				DefaultModel: "nova-2",
			},
			Inline: InlineProviderConfig{
				BaseURL:        "https://generativelanguage.googleapis.com",
				MaxInlineBytes: 20 * 1024 * 1024,
			},
		},
		Summarizer: SummarizerConfig{
			Provider: "openai",
		},
	}
}

// Load reads config from the given path. An empty path uses ConfigPath().
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.Server.UploadDir = expandPath(cfg.Server.UploadDir)
	return cfg, nil
}

// LoadOrDefault loads config if it exists, otherwise returns defaults.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// applyDefaults fills zero values so a partial YAML file stays usable.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.UploadDir == "" {
		c.Server.UploadDir = def.Server.UploadDir
	}
	if c.Server.MaxConcurrent <= 0 {
		c.Server.MaxConcurrent = def.Server.MaxConcurrent
	}
	if c.Media.FFmpegPath == "" {
		c.Media.FFmpegPath = def.Media.FFmpegPath
	}
	if c.Media.FFprobePath == "" {
		c.Media.FFprobePath = def.Media.FFprobePath
	}
	if c.Media.SegmentBudgetMB <= 0 {
		c.Media.SegmentBudgetMB = def.Media.SegmentBudgetMB
	}
	if c.Media.ProcessTimeout <= 0 {
		c.Media.ProcessTimeout = def.Media.ProcessTimeout
	}
	if c.Providers.Batch.BaseURL == "" {
		c.Providers.Batch.BaseURL = def.Providers.Batch.BaseURL
	}
	if c.Providers.Batch.DefaultModel == "" {
		c.Providers.Batch.DefaultModel = def.Providers.Batch.DefaultModel
	}
	if c.Providers.Inline.BaseURL == "" {
		c.Providers.Inline.BaseURL = def.Providers.Inline.BaseURL
	}
	if c.Providers.Inline.MaxInlineBytes <= 0 {
		c.Providers.Inline.MaxInlineBytes = def.Providers.Inline.MaxInlineBytes
	}
}

// expandPath expands a leading tilde to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		if len(path) == 1 || path[1] == '/' || path[1] == '\\' {
			home, err := os.UserHomeDir()
			if err == nil {
				subPath := path[1:]
				if len(subPath) > 0 && (subPath[0] == '/' || subPath[0] == '\\') {
					subPath = subPath[1:]
				}
				return filepath.Join(home, subPath)
			}
		}
	}

	return path
}
