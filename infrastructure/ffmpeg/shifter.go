package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"tonebot/domain/audio"
	"tonebot/infrastructure/command"
)

// Shifter implements audio.PitchShifter using ffmpeg.
//
// The signal is resampled by 2^(n/12) to move the pitch, brought back to the
// source sample rate, and time-stretched by the inverse ratio so the duration
// is unchanged.
type Shifter struct {
	ffmpegPath string
	prober     *Prober
	runner     command.Runner
}

// ShifterOption is a functional option for configuring Shifter
type ShifterOption func(*Shifter)

// WithFFmpegPath sets a custom ffmpeg executable path
func WithFFmpegPath(path string) ShifterOption {
	return func(s *Shifter) {
		if path != "" {
			s.ffmpegPath = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner command.Runner) ShifterOption {
	return func(s *Shifter) {
		s.runner = runner
	}
}

// NewShifter creates a new FFmpeg-based pitch shifter
func NewShifter(prober *Prober, opts ...ShifterOption) *Shifter {
	s := &Shifter{
		ffmpegPath: "ffmpeg",
		prober:     prober,
		runner:     &command.ExecRunner{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Shift implements audio.PitchShifter. Output is written to a temporary
// sibling and renamed into place, so OutputPath only ever holds a complete file.
func (s *Shifter) Shift(ctx context.Context, req *audio.ShiftRequest) error {
	if req.Semitones == 0 {
		return fmt.Errorf("refusing to shift %s by zero semitones", filepath.Base(req.SourcePath))
	}

	info, err := s.prober.Inspect(ctx, req.SourcePath)
	if err != nil {
		return err
	}

	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = audio.DefaultBitrate
	}

	tmp := filepath.Join(filepath.Dir(req.OutputPath), ".partial-"+filepath.Base(req.OutputPath))
	filter, err := PitchFilter(info.SampleRate, req.Semitones)
	if err != nil {
		return err
	}

	args := []string{
		"-v", "error",
		"-i", req.SourcePath,
		"-vn",
		"-af", filter,
		"-ar", fmt.Sprint(info.SampleRate),
	}
	if encoder := encoderFor(req.OutputPath); encoder != "" {
		args = append(args, "-acodec", encoder)
	}
	args = append(args, "-ab", bitrate, "-y", tmp)

	if err := s.runner.Run(ctx, s.ffmpegPath, args...); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ffmpeg pitch shift failed: %w", err)
	}

	if err := os.Rename(tmp, req.OutputPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move shifted audio into place: %w", err)
	}

	return nil
}

// VerifyInstalled checks that ffmpeg and ffprobe are available
func (s *Shifter) VerifyInstalled(ctx context.Context) error {
	if _, err := s.runner.Output(ctx, s.ffmpegPath, "-version"); err != nil {
		return fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	return s.prober.VerifyInstalled(ctx)
}

// PitchFilter builds the ffmpeg audio filter graph shifting sampleRate audio
// by semitones without changing its length
func PitchFilter(sampleRate, semitones int) (string, error) {
	if sampleRate <= 0 {
		return "", fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	ratio := math.Pow(2, float64(semitones)/12)
	shifted := float64(sampleRate) * ratio
	if math.IsInf(shifted, 0) || shifted < 1 || shifted > math.MaxInt32 {
		return "", fmt.Errorf("cannot shift %d Hz audio by %d semitones", sampleRate, semitones)
	}

	chain, err := atempoChain(1 / ratio)
	if err != nil {
		return "", err
	}

	filters := []string{
		fmt.Sprintf("asetrate=%d", int(math.Round(shifted))),
		fmt.Sprintf("aresample=%d", sampleRate),
	}
	return strings.Join(append(filters, chain...), ","), nil
}

// encoderFor picks the audio encoder for the output container, or "" to let
// ffmpeg choose
func encoderFor(path string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp3":
		return "libmp3lame"
	case "m4a", "aac":
		return "aac"
	case "opus":
		return "libopus"
	case "ogg", "vorbis":
		return "libvorbis"
	case "flac":
		return "flac"
	}
	return ""
}

// atempoChain splits tempo into factors inside atempo's accepted [0.5, 2] range
func atempoChain(tempo float64) ([]string, error) {
	if math.IsNaN(tempo) || math.IsInf(tempo, 0) || tempo <= 0 {
		return nil, fmt.Errorf("invalid atempo factor %v", tempo)
	}

	var chain []string
	for tempo > 2 {
		chain = append(chain, "atempo=2")
		tempo /= 2
	}
	for tempo < 0.5 {
		chain = append(chain, "atempo=0.5")
		tempo /= 0.5
	}
	return append(chain, fmt.Sprintf("atempo=%.6f", tempo)), nil
}

// Ensure Shifter implements audio.PitchShifter
var _ audio.PitchShifter = (*Shifter)(nil)
