package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Audio       AudioConfig       `yaml:"audio"`
	Tools       ToolsConfig       `yaml:"tools"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Input       InputConfig       `yaml:"input"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Log         LogConfig         `yaml:"log"`
}

// PathsConfig contains directory paths for downloaded and shifted audio
type PathsConfig struct {
	DownloadsDirectory string `yaml:"downloads_directory"`
}

// CredentialsConfig locates the bot token
type CredentialsConfig struct {
	PrivateKeyFile string `yaml:"private_key_file"`
	TokenFile      string `yaml:"token_file"`
	TokenEnv       string `yaml:"token_env"`
}

// AudioConfig contains audio extraction settings
type AudioConfig struct {
	Codec   string `yaml:"codec"`
	Bitrate string `yaml:"bitrate"`
}

// ToolsConfig contains paths to external executables
type ToolsConfig struct {
	Ytdlp   string `yaml:"ytdlp"`
	FFmpeg  string `yaml:"ffmpeg"`
	FFprobe string `yaml:"ffprobe"`
	Age     string `yaml:"age"`
}

// TelegramConfig contains Bot API settings
type TelegramConfig struct {
	APIEndpoint string `yaml:"api_endpoint"`
	PollTimeout int    `yaml:"poll_timeout"`
	LockFile    string `yaml:"lock_file"`
}

// InputConfig controls how free-text requests are validated
type InputConfig struct {
	// Lenient processes the first two tokens of an over-long message after
	// reporting the format error, instead of stopping
	Lenient bool `yaml:"lenient"`
}

// MetricsConfig contains the Prometheus endpoint settings
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
}

// ArchiveConfig contains Google Drive archival settings
type ArchiveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	FolderID        string `yaml:"folder_id"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default configuration values
const (
	DefaultConfigPath         = "config/config.yaml"
	DefaultDownloadsDirectory = "downloads"
	DefaultPrivateKeyFile     = "~/.ssh/id_rsa"
	DefaultTokenFile          = "./token.enc"
	DefaultTokenEnv           = "TOKEN"
	DefaultCodec              = "mp3"
	DefaultBitrate            = "192k"
	DefaultAPIEndpoint        = "https://api.telegram.org"
	DefaultPollTimeout        = 60
	DefaultLockFile           = "tonebot.lock"
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads and parses the configuration from the specified YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not exist
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the specified YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyDefaults fills every empty field with its default
func (c *Config) ApplyDefaults() {
	setDefault(&c.Paths.DownloadsDirectory, DefaultDownloadsDirectory)
	setDefault(&c.Credentials.PrivateKeyFile, DefaultPrivateKeyFile)
	setDefault(&c.Credentials.TokenFile, DefaultTokenFile)
	setDefault(&c.Credentials.TokenEnv, DefaultTokenEnv)
	setDefault(&c.Audio.Codec, DefaultCodec)
	setDefault(&c.Audio.Bitrate, DefaultBitrate)
	setDefault(&c.Tools.Ytdlp, "yt-dlp")
	setDefault(&c.Tools.FFmpeg, "ffmpeg")
	setDefault(&c.Tools.FFprobe, "ffprobe")
	setDefault(&c.Tools.Age, "age")
	setDefault(&c.Telegram.APIEndpoint, DefaultAPIEndpoint)
	setDefault(&c.Telegram.LockFile, DefaultLockFile)
	setDefault(&c.Log.Level, "info")
	setDefault(&c.Log.Format, "text")
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
}

// ApplyEnv overrides selected fields from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	overrides := map[string]*string{
		"TONEBOT_DOWNLOADS_DIR": &c.Paths.DownloadsDirectory,
		"TONEBOT_LOG_LEVEL":     &c.Log.Level,
		"TONEBOT_LOG_FORMAT":    &c.Log.Format,
		"TONEBOT_METRICS_ADDR":  &c.Metrics.ListenAddress,
	}
	for key, field := range overrides {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*field = v
		}
	}
}

// ArchiveEnabled returns true when Drive archival is configured
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.CredentialsFile != "" && c.Archive.FolderID != ""
}

// ExpandHome replaces a leading "~" with the user's home directory
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}
