package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tonebot/domain/archive"
	"tonebot/domain/audio"
	"tonebot/domain/chat"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Handler names reported to the UpdateObserver
const (
	HandlerStart   = "start"
	HandlerHelp    = "help"
	HandlerText    = "text"
	HandlerIgnored = "ignored"
)

// IntroText is the greeting sent on /start
const IntroText = "Send me a URL, and I'll download the audio for you!"

// HelpText describes the accepted message format
const HelpText = "Your messages should have the following format:\n\n" +
	"<url> [semitones]\n\n" +
	"For instance:\n\n" +
	"'https://youtu.be/dQw4w9WgXcQ 1' sends you the video's audio shifted 1 semitone up.\n\n" +
	"'https://youtu.be/dQw4w9WgXcQ -2' sends you the video's audio shifted 2 semitones down.\n\n" +
	"'https://youtu.be/dQw4w9WgXcQ' sends you the video's original audio."

// URLHintText answers a message that is a bare slash with no command name
const URLHintText = "Send me a URL, optionally followed by a number of semitones."

// Pipeline produces audio artifacts for a request
type Pipeline interface {
	Download(ctx context.Context, url string) (*audio.Artifact, error)
	Shift(ctx context.Context, original *audio.Artifact, semitones int) (*audio.Artifact, error)
}

// Archiver publishes a produced artifact and returns its shareable link
type Archiver interface {
	Archive(ctx context.Context, path string) (*archive.UploadResult, error)
}

// UpdateObserver counts routed updates
type UpdateObserver interface {
	ObserveUpdate(handler string)
}

// SizeFunc reports the size of a file in bytes
type SizeFunc func(path string) int64

// Dispatcher routes incoming messages to the start, help and free-text
// handlers. Every failure is reported back to the chat. Handle never returns an
// error, and a panic while serving one update is recovered and reported as an
// internal error so the polling loop survives.
type Dispatcher struct {
	messenger chat.Messenger
	pipeline  Pipeline
	archiver  Archiver
	observer  UpdateObserver
	sizeOf    SizeFunc
	lenient   bool
	logger    *slog.Logger
}

// Option is a functional option for configuring Dispatcher
type Option func(*Dispatcher)

// WithArchiver enables archiving of every delivered artifact
func WithArchiver(archiver Archiver) Option {
	return func(d *Dispatcher) {
		d.archiver = archiver
	}
}

// WithObserver sets the update observer (metrics)
func WithObserver(observer UpdateObserver) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observer = observer
		}
	}
}

// WithSizeFunc sets how artifact sizes are looked up for the download notice
func WithSizeFunc(sizeOf SizeFunc) Option {
	return func(d *Dispatcher) {
		d.sizeOf = sizeOf
	}
}

// WithLenientInput processes the first two tokens of an over-long message
// after reporting the format error
func WithLenientInput(lenient bool) Option {
	return func(d *Dispatcher) {
		d.lenient = lenient
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

type nopObserver struct{}

func (nopObserver) ObserveUpdate(string) {}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(messenger chat.Messenger, pipeline Pipeline, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		messenger: messenger,
		pipeline:  pipeline,
		observer:  nopObserver{},
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Handle routes a single update
func (d *Dispatcher) Handle(ctx context.Context, update chat.Update) {
	logger := d.logger.With(
		slog.String("request_id", uuid.NewString()),
		slog.Int64("chat_id", update.ChatID),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling update", slog.Any("panic", r))
			d.reply(ctx, logger, update.ChatID, ErrorText(fmt.Errorf("internal error: %v", r)))
		}
	}()

	switch update.Command() {
	case "":
		d.observer.ObserveUpdate(HandlerText)
		d.handleText(ctx, logger, update)
	case HandlerStart:
		d.observer.ObserveUpdate(HandlerStart)
		d.reply(ctx, logger, update.ChatID, IntroText)
		d.reply(ctx, logger, update.ChatID, HelpText)
	case HandlerHelp:
		d.observer.ObserveUpdate(HandlerHelp)
		d.reply(ctx, logger, update.ChatID, HelpText)
	default:
		d.observer.ObserveUpdate(HandlerIgnored)
		logger.Debug("ignoring unknown command", slog.String("command", update.Command()))
	}
}

func (d *Dispatcher) handleText(ctx context.Context, logger *slog.Logger, update chat.Update) {
	if strings.HasPrefix(strings.TrimSpace(update.Text), "/") {
		d.reply(ctx, logger, update.ChatID, URLHintText)
		return
	}

	req, err := audio.ParseRequest(update.Text)
	if err != nil {
		d.fail(ctx, logger, update.ChatID, err)
		if !d.lenient || req == nil || !errors.Is(err, audio.ErrTooManyTokens) {
			return
		}
	}

	logger = logger.With(slog.String("url", req.URL), slog.Int("semitones", req.Semitones))
	logger.Info("processing request")

	original, err := d.pipeline.Download(ctx, req.URL)
	if err != nil {
		d.fail(ctx, logger, update.ChatID, err)
		return
	}
	d.reply(ctx, logger, update.ChatID, d.downloadNotice(original))

	output, err := d.pipeline.Shift(ctx, original, req.Semitones)
	if err != nil {
		d.fail(ctx, logger, update.ChatID, err)
		return
	}

	if err := d.messenger.SendAudio(ctx, update.ChatID, output); err != nil {
		d.fail(ctx, logger, update.ChatID, fmt.Errorf("failed to send audio: %w", err))
		return
	}
	logger.Info("audio delivered", slog.String("path", output.Path), slog.Bool("cached", output.Cached))

	d.archive(ctx, logger, update.ChatID, output)
}

func (d *Dispatcher) downloadNotice(artifact *audio.Artifact) string {
	notice := "Downloaded content: " + artifact.Name()
	if d.sizeOf != nil {
		if size := d.sizeOf(artifact.Path); size > 0 {
			notice += fmt.Sprintf(" (%s)", humanize.Bytes(uint64(size)))
		}
	}
	return notice
}

func (d *Dispatcher) archive(ctx context.Context, logger *slog.Logger, chatID int64, artifact *audio.Artifact) {
	if d.archiver == nil {
		return
	}

	result, err := d.archiver.Archive(ctx, artifact.Path)
	if err != nil {
		logger.Warn("archive failed", slog.String("path", artifact.Path), slog.Any("error", err))
		return
	}
	d.reply(ctx, logger, chatID, "Archived: "+result.ShareableURL)
}

func (d *Dispatcher) fail(ctx context.Context, logger *slog.Logger, chatID int64, err error) {
	logger.Warn("request failed", slog.Any("error", err))
	d.reply(ctx, logger, chatID, ErrorText(err))
}

func (d *Dispatcher) reply(ctx context.Context, logger *slog.Logger, chatID int64, text string) {
	if err := d.messenger.SendText(ctx, chatID, text); err != nil {
		logger.Error("failed to send reply", slog.Any("error", err))
	}
}

// ErrorText formats err as the reply sent to the user
func ErrorText(err error) string {
	return "Error: " + err.Error()
}
