package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"tonebot/application/pipeline"
	"tonebot/domain/audio"
	"tonebot/infrastructure/config"
	"tonebot/infrastructure/ffmpeg"
	"tonebot/infrastructure/filesystem"
	"tonebot/infrastructure/ytdlp"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [semitones]",
	Short: "Download (and optionally pitch-shift) a video's audio without Telegram",
	Long: `Run the audio pipeline locally and print the resulting file path.

Files already present in the downloads directory are reused.

Example:
  tonebot fetch https://youtu.be/dQw4w9WgXcQ
  tonebot fetch https://youtu.be/dQw4w9WgXcQ -2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	prober := ffmpeg.NewProber(ffmpeg.WithFFprobePath(cfg.Tools.FFprobe))
	downloader := ytdlp.NewDownloader(
		ytdlp.WithYtdlpPath(cfg.Tools.Ytdlp),
		ytdlp.WithAudioFormat(cfg.Audio.Codec, cfg.Audio.Bitrate),
	)
	shifter := ffmpeg.NewShifter(prober, ffmpeg.WithFFmpegPath(cfg.Tools.FFmpeg))

	svc := pipeline.NewService(
		downloader,
		shifter,
		filesystem.NewChecker(),
		config.ExpandHome(cfg.Paths.DownloadsDirectory),
		pipeline.WithBitrate(cfg.Audio.Bitrate),
		pipeline.WithLogger(logger),
	)

	return RunFetchWithDependencies(cmd.Context(), svc, []interface{}{downloader, shifter}, strings.Join(args, " "), DefaultOutput)
}

// Processor runs both pipeline stages for a request
type Processor interface {
	Process(ctx context.Context, req *audio.Request) (*pipeline.Result, error)
	OutputDir() string
}

// RunFetchWithDependencies runs the fetch command with injected dependencies (for testing)
func RunFetchWithDependencies(
	ctx context.Context,
	processor Processor,
	tools []interface{},
	text string,
	output OutputWriter,
) error {
	req, err := audio.ParseRequest(text)
	if err != nil {
		return err
	}

	if err := verifyTools(ctx, tools...); err != nil {
		return err
	}

	if err := filesystem.EnsureDir(processor.OutputDir()); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	fmt.Fprintf(output, "Fetching %s...\n", req.URL)

	result, err := processor.Process(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Downloaded content: %s%s\n", result.Original.Name(), sizeSuffix(result.Original.Path))
	if req.IsShifted() {
		verb := "Created"
		if result.Output.Cached {
			verb = "Reused"
		}
		fmt.Fprintf(output, "%s %s: %s%s\n", verb, audio.OffsetTag(req.Semitones), result.Output.Path, sizeSuffix(result.Output.Path))
	}
	fmt.Fprintf(output, "Output: %s\n", result.Output.Path)
	return nil
}

func sizeSuffix(path string) string {
	size := filesystem.NewChecker().Size(path)
	if size <= 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", humanize.Bytes(uint64(size)))
}
