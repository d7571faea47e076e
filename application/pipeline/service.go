package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tonebot/domain/audio"

	"golang.org/x/sync/singleflight"
)

// Stage names reported to the StageObserver
const (
	StageDownload = "download"
	StageShift    = "shift"
)

// StageObserver receives the outcome of every pipeline stage
type StageObserver interface {
	ObserveStage(stage string, cached bool, d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, bool, time.Duration, error) {}

// Service coordinates the download and pitch-shift stages.
//
// Both stages are idempotent by output path: an existing file is returned as
// is. Concurrent requests for the same output path share a single execution.
type Service struct {
	downloader  audio.Downloader
	shifter     audio.PitchShifter
	fileChecker audio.FileChecker
	outputDir   string
	bitrate     string
	observer    StageObserver
	logger      *slog.Logger
	inflight    singleflight.Group
}

// Option is a functional option for configuring Service
type Option func(*Service)

// WithBitrate sets the bitrate of shifted output
func WithBitrate(bitrate string) Option {
	return func(s *Service) {
		if bitrate != "" {
			s.bitrate = bitrate
		}
	}
}

// WithObserver sets the stage observer (metrics)
func WithObserver(observer StageObserver) Option {
	return func(s *Service) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new pipeline Service writing artifacts to outputDir
func NewService(downloader audio.Downloader, shifter audio.PitchShifter, fileChecker audio.FileChecker, outputDir string, opts ...Option) *Service {
	s := &Service{
		downloader:  downloader,
		shifter:     shifter,
		fileChecker: fileChecker,
		outputDir:   outputDir,
		bitrate:     audio.DefaultBitrate,
		observer:    nopObserver{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// OutputDir returns the directory artifacts are written to
func (s *Service) OutputDir() string {
	return s.outputDir
}

// Result contains both artifacts of a processed request
type Result struct {
	Original *audio.Artifact
	Output   *audio.Artifact
}

// Process runs both stages for req
func (s *Service) Process(ctx context.Context, req *audio.Request) (*Result, error) {
	original, err := s.Download(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	output, err := s.Shift(ctx, original, req.Semitones)
	if err != nil {
		return nil, err
	}

	return &Result{Original: original, Output: output}, nil
}

// Download probes url for metadata, computes the output path and downloads
// the audio unless that path already holds a file
func (s *Service) Download(ctx context.Context, url string) (*audio.Artifact, error) {
	start := time.Now()

	track, err := s.downloader.Probe(ctx, url, s.outputDir)
	if err != nil {
		s.observer.ObserveStage(StageDownload, false, time.Since(start), err)
		return nil, err
	}

	cached, err := s.once(ctx, track.Path, func(ctx context.Context) error {
		s.logger.Info("downloading audio", slog.String("url", url), slog.String("path", track.Path))
		return s.downloader.Download(ctx, track)
	})
	s.observer.ObserveStage(StageDownload, cached, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if cached {
		s.logger.Debug("reusing downloaded audio", slog.String("path", track.Path))
	}

	return &audio.Artifact{
		Path:      track.Path,
		Title:     track.Title,
		Performer: track.Uploader,
		Duration:  track.Duration,
		Cached:    cached,
	}, nil
}

// Shift returns original unchanged for a zero offset. Otherwise it produces
// the "(ST ±N)" sibling of original, reusing it if it already exists.
func (s *Service) Shift(ctx context.Context, original *audio.Artifact, semitones int) (*audio.Artifact, error) {
	if semitones == 0 {
		return original, nil
	}

	start := time.Now()
	req := &audio.ShiftRequest{
		SourcePath: original.Path,
		OutputPath: audio.ShiftedPath(original.Path, semitones),
		Semitones:  semitones,
		Bitrate:    s.bitrate,
	}

	cached, err := s.once(ctx, req.OutputPath, func(ctx context.Context) error {
		s.logger.Info("shifting pitch", slog.String("path", req.OutputPath), slog.Int("semitones", semitones))
		return s.shifter.Shift(ctx, req)
	})
	s.observer.ObserveStage(StageShift, cached, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("pitch shift by %d semitones failed: %w", semitones, err)
	}

	return &audio.Artifact{
		Path:      req.OutputPath,
		Title:     original.Title,
		Performer: original.Performer,
		Duration:  original.Duration,
		Semitones: semitones,
		Cached:    cached,
	}, nil
}

// once runs create unless path exists, with at most one execution in flight
// per path. It reports cached=true unless this caller's own create produced
// the file.
//
// create runs detached from the starting caller's cancellation. Each caller
// stops waiting as soon as its own ctx is done.
func (s *Service) once(ctx context.Context, path string, create func(context.Context) error) (bool, error) {
	ran := false
	ch := s.inflight.DoChan(path, func() (interface{}, error) {
		ran = true
		if s.fileChecker.Exists(path) {
			return true, nil
		}
		return false, create(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		existed, _ := res.Val.(bool)
		return existed || !ran, nil
	}
}
