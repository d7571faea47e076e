package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tonebot/domain/audio"
	"tonebot/infrastructure/command"

	"github.com/tidwall/gjson"
)

// outputTemplate names files after the source title
const outputTemplate = "%(title)s.%(ext)s"

// Downloader implements audio.Downloader using yt-dlp
type Downloader struct {
	ytdlpPath string
	codec     string
	bitrate   string
	runner    command.Runner
}

// DownloaderOption is a functional option for configuring Downloader
type DownloaderOption func(*Downloader)

// WithYtdlpPath sets a custom yt-dlp executable path
func WithYtdlpPath(path string) DownloaderOption {
	return func(d *Downloader) {
		if path != "" {
			d.ytdlpPath = path
		}
	}
}

// WithAudioFormat sets the target codec and quality of extracted audio
func WithAudioFormat(codec, bitrate string) DownloaderOption {
	return func(d *Downloader) {
		if codec != "" {
			d.codec = codec
		}
		if bitrate != "" {
			d.bitrate = bitrate
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner command.Runner) DownloaderOption {
	return func(d *Downloader) {
		d.runner = runner
	}
}

// NewDownloader creates a new yt-dlp based downloader
func NewDownloader(opts ...DownloaderOption) *Downloader {
	d := &Downloader{
		ytdlpPath: "yt-dlp",
		codec:     audio.DefaultCodec,
		bitrate:   audio.DefaultBitrate,
		runner:    &command.ExecRunner{},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Probe implements audio.Downloader. It dumps the info JSON without
// downloading and derives the post-extraction filename from it.
func (d *Downloader) Probe(ctx context.Context, url string, outputDir string) (*audio.Track, error) {
	args := []string{
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"-f", "bestaudio/best",
		"-o", filepath.Join(outputDir, outputTemplate),
		url,
	}

	out, err := d.runner.Output(ctx, d.ytdlpPath, args...)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp metadata probe failed: %w", err)
	}
	if !gjson.ValidBytes(out) {
		return nil, fmt.Errorf("yt-dlp returned malformed metadata for %s", url)
	}

	info := gjson.ParseBytes(out)
	title := info.Get("title").String()
	if title == "" {
		return nil, fmt.Errorf("no title found for %s", url)
	}

	filename := info.Get("_filename").String()
	if filename == "" {
		filename = info.Get("filename").String()
	}
	if filename == "" {
		filename = filepath.Join(outputDir, sanitize(title)+"."+d.codec)
	}

	return &audio.Track{
		URL:      url,
		Title:    title,
		Uploader: info.Get("uploader").String(),
		Duration: time.Duration(info.Get("duration").Float() * float64(time.Second)),
		Path:     audio.WithExtension(filename, d.codec),
	}, nil
}

// Download implements audio.Downloader
func (d *Downloader) Download(ctx context.Context, track *audio.Track) error {
	dir := filepath.Dir(track.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	args := []string{
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", d.codec,
		"--audio-quality", d.bitrate,
		"--no-playlist",
		"--no-progress",
		"--quiet",
		"--no-warnings",
		"-o", filepath.Join(dir, outputTemplate),
		track.URL,
	}

	if err := d.runner.Run(ctx, d.ytdlpPath, args...); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w", err)
	}

	if _, err := os.Stat(track.Path); err != nil {
		return fmt.Errorf("yt-dlp finished but %s was not created: %w", filepath.Base(track.Path), err)
	}

	return nil
}

// VerifyInstalled checks that yt-dlp is available
func (d *Downloader) VerifyInstalled(ctx context.Context) error {
	_, err := d.runner.Output(ctx, d.ytdlpPath, "--version")
	if err != nil {
		return fmt.Errorf("yt-dlp not found or not executable: %w", err)
	}
	return nil
}

// sanitize mirrors the path separator replacement yt-dlp applies to titles
func sanitize(title string) string {
	return strings.NewReplacer("/", "⧸", "\\", "⧹").Replace(title)
}

// Ensure Downloader implements audio.Downloader
var _ audio.Downloader = (*Downloader)(nil)
