package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tonebot/infrastructure/command"
)

// StreamInfo holds the properties of the first audio stream of a file
type StreamInfo struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
}

type probeResult struct {
	Streams []struct {
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober inspects audio files with ffprobe
type Prober struct {
	ffprobePath string
	runner      command.Runner
}

// ProberOption is a functional option for configuring Prober
type ProberOption func(*Prober)

// WithFFprobePath sets a custom ffprobe executable path
func WithFFprobePath(path string) ProberOption {
	return func(p *Prober) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// WithProberCommandRunner sets a custom command runner (for testing)
func WithProberCommandRunner(runner command.Runner) ProberOption {
	return func(p *Prober) {
		p.runner = runner
	}
}

// NewProber creates a new ffprobe-based inspector
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		ffprobePath: "ffprobe",
		runner:      &command.ExecRunner{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Inspect returns the sample rate, channel count and duration of path
func (p *Prober) Inspect(ctx context.Context, path string) (*StreamInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels,duration:format=duration",
		"-of", "json",
		"--", path,
	}

	out, err := p.runner.Output(ctx, p.ffprobePath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffprobe inspect failed: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, fmt.Errorf("ffprobe parse: %w", err)
	}
	if len(result.Streams) == 0 {
		return nil, fmt.Errorf("no audio stream found in %s", path)
	}

	stream := result.Streams[0]
	rate, err := strconv.Atoi(strings.TrimSpace(stream.SampleRate))
	if err != nil || rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q in %s", stream.SampleRate, path)
	}

	duration := parseSeconds(stream.Duration)
	if duration == 0 {
		duration = parseSeconds(result.Format.Duration)
	}

	return &StreamInfo{
		SampleRate: rate,
		Channels:   stream.Channels,
		Duration:   duration,
	}, nil
}

// VerifyInstalled checks that ffprobe is available
func (p *Prober) VerifyInstalled(ctx context.Context) error {
	_, err := p.runner.Output(ctx, p.ffprobePath, "-version")
	if err != nil {
		return fmt.Errorf("ffprobe not found or not executable: %w", err)
	}
	return nil
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
