package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"tonebot/infrastructure/config"
	"tonebot/infrastructure/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
	cfgErr   error
)

var rootCmd = &cobra.Command{
	Use:   "tonebot",
	Short: "Telegram bot that sends back a video's audio, optionally pitch-shifted",
	Long: `tonebot downloads the audio track of a video URL and sends it back as an
mp3, optionally shifted by a number of semitones:

  - Resolve the bot token from an age-encrypted file, TOKEN, or a prompt
  - Download best audio with yt-dlp
  - Shift pitch with ffmpeg without changing duration
  - Reuse every file already produced

Example:
  tonebot run
  tonebot fetch https://youtu.be/dQw4w9WgXcQ -2`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath
	}

	// .env is optional; it may carry TOKEN and TONEBOT_* overrides
	_ = godotenv.Load()

	cfg, cfgErr = config.LoadOrDefault(cfgFile)
	if cfgErr != nil {
		cfg = nil
		return
	}
	cfg.ApplyEnv(os.Getenv)
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
}

// GetConfig returns the loaded configuration
func GetConfig() (*config.Config, error) {
	if cfgErr != nil {
		return nil, cfgErr
	}
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}

// OutputWriter allows capturing output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

// DefaultOutput is the default output writer for commands
var DefaultOutput OutputWriter = os.Stdout

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, fmt.Errorf("invalid log configuration: %w", err)
	}
	return logger, nil
}
