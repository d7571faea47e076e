package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"tonebot/infrastructure/config"
	"tonebot/infrastructure/logging"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration file",
	Long: `Show the effective configuration or change a single setting.

Examples:
  tonebot config show
  tonebot config keys
  tonebot config set bitrate 256k
  tonebot config set lenient true`,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configSetCmd)
}

// configSetting maps a short key to a config field
type configSetting struct {
	description string
	get         func(*config.Config) string
	set         func(*config.Config, string) error
}

func stringSetting(description string, field func(*config.Config) *string) configSetting {
	return configSetting{
		description: description,
		get:         func(c *config.Config) string { return *field(c) },
		set: func(c *config.Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

var configSettings = map[string]configSetting{
	"downloads_directory": stringSetting("Directory for downloaded and shifted audio", func(c *config.Config) *string { return &c.Paths.DownloadsDirectory }),
	"private_key_file":    stringSetting("age identity used to decrypt the token file", func(c *config.Config) *string { return &c.Credentials.PrivateKeyFile }),
	"token_file":          stringSetting("age-encrypted bot token", func(c *config.Config) *string { return &c.Credentials.TokenFile }),
	"token_env":           stringSetting("Environment variable holding the token", func(c *config.Config) *string { return &c.Credentials.TokenEnv }),
	"bitrate":             stringSetting("Audio bitrate for downloads and shifted output", func(c *config.Config) *string { return &c.Audio.Bitrate }),
	"api_endpoint":        stringSetting("Bot API base URL", func(c *config.Config) *string { return &c.Telegram.APIEndpoint }),
	"lock_file":           stringSetting("Single-instance lock file", func(c *config.Config) *string { return &c.Telegram.LockFile }),
	"metrics_address":     stringSetting("Prometheus listen address, empty disables", func(c *config.Config) *string { return &c.Metrics.ListenAddress }),
	"archive_credentials": stringSetting("Google service account JSON for archiving", func(c *config.Config) *string { return &c.Archive.CredentialsFile }),
	"archive_folder":      stringSetting("Google Drive folder ID for archiving", func(c *config.Config) *string { return &c.Archive.FolderID }),
	"log_format":          stringSetting("Log format (text or json)", func(c *config.Config) *string { return &c.Log.Format }),
	"log_level": {
		description: "Log level (debug, info, warn, error)",
		get:         func(c *config.Config) string { return c.Log.Level },
		set: func(c *config.Config, v string) error {
			if _, err := logging.ParseLevel(v); err != nil {
				return err
			}
			c.Log.Level = v
			return nil
		},
	},
	"poll_timeout": {
		description: "Long-poll timeout in seconds",
		get:         func(c *config.Config) string { return strconv.Itoa(c.Telegram.PollTimeout) },
		set: func(c *config.Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return fmt.Errorf("poll_timeout must be a positive number of seconds")
			}
			c.Telegram.PollTimeout = n
			return nil
		},
	},
	"lenient": {
		description: "Process the first two tokens of over-long messages",
		get:         func(c *config.Config) string { return strconv.FormatBool(c.Input.Lenient) },
		set: func(c *config.Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("lenient must be true or false")
			}
			c.Input.Lenient = b
			return nil
		},
	},
}

// --- SHOW command ---

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults and TONEBOT_* environment
overrides have been applied.

Example:
  tonebot config show`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	return RunConfigShowWithDependencies(cfg, DefaultOutput)
}

// RunConfigShowWithDependencies runs the show command with injected dependencies
func RunConfigShowWithDependencies(cfg *config.Config, out OutputWriter) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	_, err = out.Write(data)
	return err
}

// --- KEYS command ---

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the settings accepted by 'config set'",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		return RunConfigKeysWithDependencies(cfg, DefaultOutput)
	},
}

// RunConfigKeysWithDependencies runs the keys command with injected dependencies
func RunConfigKeysWithDependencies(cfg *config.Config, out OutputWriter) error {
	keys := make([]string, 0, len(configSettings))
	for k := range configSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tVALUE\tDESCRIPTION")
	for _, k := range keys {
		s := configSettings[k]
		fmt.Fprintf(w, "%s\t%s\t%s\n", k, s.get(cfg), s.description)
	}
	return w.Flush()
}

// --- SET command ---

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting in the configuration file",
	Long: `Change one setting and save the configuration file. The file is
created with defaults if it does not exist yet.

Examples:
  tonebot config set downloads_directory ~/Music/tonebot
  tonebot config set metrics_address :9090`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	return RunConfigSetWithDependencies(cfgFile, args[0], args[1], DefaultOutput)
}

// RunConfigSetWithDependencies runs the set command with injected dependencies.
// The file is re-read so environment overrides are never persisted.
func RunConfigSetWithDependencies(configPath, key, value string, out OutputWriter) error {
	setting, ok := configSettings[key]
	if !ok {
		return fmt.Errorf("unknown setting %q. Run 'tonebot config keys' to list settings", key)
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	old := setting.get(cfg)
	if err := setting.set(cfg, value); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := config.Save(cfg, configPath); err != nil {
		return err
	}

	fmt.Fprintf(out, "Updated %s: %q -> %q\n", key, old, setting.get(cfg))
	return nil
}
