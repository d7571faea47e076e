package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	apparchive "tonebot/application/archive"
	"tonebot/application/dispatch"
	"tonebot/application/pipeline"
	"tonebot/domain/audio"
	"tonebot/domain/chat"
	"tonebot/infrastructure/config"
	"tonebot/infrastructure/drive"
	"tonebot/infrastructure/ffmpeg"
	"tonebot/infrastructure/filesystem"
	"tonebot/infrastructure/instance"
	"tonebot/infrastructure/metrics"
	"tonebot/infrastructure/telegram"
	"tonebot/infrastructure/ytdlp"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and serve requests until interrupted",
	Long: `Start the bot.

Startup checks, in order:
  1. Resolve the bot token (encrypted file, environment, prompt)
  2. Validate it against getMe; any failure aborts
  3. Take the instance lock; if another instance holds it, exit
  4. Probe getUpdates; if another poller is active, exit
  5. Verify yt-dlp, ffmpeg and ffprobe are installed

Example:
  tonebot run
  TOKEN=123:abc tonebot run --log-level debug`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// IdentityChecker validates the token and detects competing pollers
type IdentityChecker interface {
	GetMe(ctx context.Context, token string) (*telegram.BotUser, error)
	ActivePoller(ctx context.Context, token string) (bool, string, error)
}

// InstanceLock guards against a second local instance
type InstanceLock interface {
	Acquire() error
	Release() error
}

// Bot receives updates and sends replies
type Bot interface {
	chat.Messenger
	Listen(ctx context.Context, handle telegram.Handler) error
}

// RunDependencies contains everything RunBotWithDependencies needs
type RunDependencies struct {
	Identity    IdentityChecker
	Lock        InstanceLock
	NewBot      func() (Bot, error)
	Downloader  audio.Downloader
	Shifter     audio.PitchShifter
	FileChecker *filesystem.Checker
	Archiver    dispatch.Archiver
	Metrics     *metrics.Metrics
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	token, err := loadToken(ctx, cfg, logger)
	if err != nil {
		return err
	}

	deps, err := newRunDependencies(ctx, cfg, token, logger)
	if err != nil {
		return err
	}

	return RunBotWithDependencies(ctx, cfg, token, deps, logger, DefaultOutput)
}

func newRunDependencies(ctx context.Context, cfg *config.Config, token string, logger *slog.Logger) (RunDependencies, error) {
	prober := ffmpeg.NewProber(ffmpeg.WithFFprobePath(cfg.Tools.FFprobe))

	deps := RunDependencies{
		Identity: telegram.NewIdentityChecker(cfg.Telegram.APIEndpoint, nil),
		Lock:     instance.NewLock(config.ExpandHome(cfg.Telegram.LockFile)),
		NewBot: func() (Bot, error) {
			return telegram.NewBot(token,
				telegram.WithEndpoint(cfg.Telegram.APIEndpoint),
				telegram.WithPollTimeout(cfg.Telegram.PollTimeout),
				telegram.WithLogger(logger),
			)
		},
		Downloader: ytdlp.NewDownloader(
			ytdlp.WithYtdlpPath(cfg.Tools.Ytdlp),
			ytdlp.WithAudioFormat(cfg.Audio.Codec, cfg.Audio.Bitrate),
		),
		Shifter:     ffmpeg.NewShifter(prober, ffmpeg.WithFFmpegPath(cfg.Tools.FFmpeg)),
		FileChecker: filesystem.NewChecker(),
		Metrics:     metrics.New(),
	}

	if cfg.ArchiveEnabled() {
		client, err := drive.NewClient(ctx, config.ExpandHome(cfg.Archive.CredentialsFile))
		if err != nil {
			return deps, fmt.Errorf("failed to create Drive client: %w", err)
		}
		deps.Archiver = apparchive.NewService(client, cfg.Archive.FolderID)
	}

	return deps, nil
}

// RunBotWithDependencies runs the startup checks and the poll loop with
// injected dependencies (for testing). It returns nil without polling when
// another instance is already active.
func RunBotWithDependencies(
	ctx context.Context,
	cfg *config.Config,
	token string,
	deps RunDependencies,
	logger *slog.Logger,
	output OutputWriter,
) error {
	user, err := deps.Identity.GetMe(ctx, token)
	if err != nil {
		return err
	}
	logger.Info("token accepted", slog.String("username", user.Username), slog.Int64("id", user.ID))

	if err := deps.Lock.Acquire(); err != nil {
		if errors.Is(err, instance.ErrAlreadyRunning) {
			fmt.Fprintf(output, "Bot @%s is already running.\n", user.Username)
			return nil
		}
		return err
	}
	defer deps.Lock.Release()

	active, reason, err := deps.Identity.ActivePoller(ctx, token)
	if err != nil {
		return err
	}
	if active {
		fmt.Fprintf(output, "Bot @%s is already running elsewhere: %s\n", user.Username, reason)
		return nil
	}

	if err := verifyTools(ctx, deps.Downloader, deps.Shifter); err != nil {
		return err
	}

	outputDir := config.ExpandHome(cfg.Paths.DownloadsDirectory)
	if err := filesystem.EnsureDir(outputDir); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	bot, err := deps.NewBot()
	if err != nil {
		return err
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithBitrate(cfg.Audio.Bitrate),
		pipeline.WithLogger(logger),
	}
	dispatchOpts := []dispatch.Option{
		dispatch.WithLenientInput(cfg.Input.Lenient),
		dispatch.WithLogger(logger),
	}
	if deps.FileChecker != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithSizeFunc(deps.FileChecker.Size))
	}
	if deps.Metrics != nil {
		pipelineOpts = append(pipelineOpts, pipeline.WithObserver(deps.Metrics))
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(deps.Metrics))
		if addr := cfg.Metrics.ListenAddress; addr != "" {
			go func() {
				if err := deps.Metrics.Serve(ctx, addr, logger); err != nil {
					logger.Error("metrics server stopped", slog.Any("error", err))
				}
			}()
		}
	}
	if deps.Archiver != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithArchiver(deps.Archiver))
	}

	svc := pipeline.NewService(deps.Downloader, deps.Shifter, deps.FileChecker, outputDir, pipelineOpts...)
	dispatcher := dispatch.NewDispatcher(bot, svc, dispatchOpts...)

	fmt.Fprintf(output, "Bot @%s is listening. Press Ctrl+C to stop.\n", user.Username)
	if err := bot.Listen(ctx, dispatcher.Handle); err != nil {
		return fmt.Errorf("poll loop failed: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// verifyTools checks every component that can verify its external binary
func verifyTools(ctx context.Context, components ...interface{}) error {
	for _, c := range components {
		verifiable, ok := c.(interface{ VerifyInstalled(context.Context) error })
		if !ok {
			continue
		}
		verifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := verifiable.VerifyInstalled(verifyCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("tool verification failed: %w", err)
		}
	}
	return nil
}
