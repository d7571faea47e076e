package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"tonebot/domain/audio"
	"tonebot/domain/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is the Bot API limit for a text message
const maxMessageLength = 4096

// DefaultPollTimeout is the long-poll timeout in seconds
const DefaultPollTimeout = 60

// Handler processes a single update; the poll loop waits for it to return
type Handler func(ctx context.Context, update chat.Update)

// Bot implements chat.Messenger on top of the Bot API and runs the poll loop
type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	logger      *slog.Logger
}

// BotOption is a functional option for configuring Bot
type BotOption func(*botOptions)

type botOptions struct {
	endpoint    string
	client      *http.Client
	pollTimeout int
	logger      *slog.Logger
}

// WithEndpoint sets the Bot API base URL (for testing or a local Bot API server)
func WithEndpoint(endpoint string) BotOption {
	return func(o *botOptions) {
		if endpoint != "" {
			o.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) BotOption {
	return func(o *botOptions) {
		o.client = client
	}
}

// WithPollTimeout sets the long-poll timeout in seconds
func WithPollTimeout(seconds int) BotOption {
	return func(o *botOptions) {
		if seconds > 0 {
			o.pollTimeout = seconds
		}
	}
}

// WithLogger sets the logger used by the bot and the underlying API client
func WithLogger(logger *slog.Logger) BotOption {
	return func(o *botOptions) {
		o.logger = logger
	}
}

// NewBot connects to the Bot API with token
func NewBot(token string, opts ...BotOption) (*Bot, error) {
	o := &botOptions{
		endpoint:    DefaultEndpoint,
		client:      &http.Client{},
		pollTimeout: DefaultPollTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if err := tgbotapi.SetLogger(&apiLogger{logger: o.logger}); err != nil {
		return nil, fmt.Errorf("failed to set bot api logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, o.endpoint+"/bot%s/%s", o.client)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	return &Bot{
		api:         api,
		pollTimeout: o.pollTimeout,
		logger:      o.logger,
	}, nil
}

// Username returns the bot's username as reported at connect time
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Listen long-polls for updates and hands each text message to handle, one at
// a time, until ctx is cancelled
func (b *Bot) Listen(ctx context.Context, handle Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout
	u.AllowedUpdates = []string{"message"}

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message == nil || upd.Message.Text == "" {
				continue
			}
			handle(ctx, toUpdate(upd.Message))
		}
	}
}

// SendText implements chat.Messenger
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLength))
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendAudio implements chat.Messenger
func (b *Bot) SendAudio(ctx context.Context, chatID int64, artifact *audio.Artifact) error {
	cfg := tgbotapi.NewAudio(chatID, tgbotapi.FilePath(artifact.Path))
	cfg.Title = artifact.Title
	if artifact.Semitones != 0 && cfg.Title != "" {
		cfg.Title = audio.OffsetTag(artifact.Semitones) + " " + cfg.Title
	}
	cfg.Performer = artifact.Performer
	cfg.Duration = int(artifact.Duration.Seconds())

	if _, err := b.api.Send(cfg); err != nil {
		return fmt.Errorf("failed to send audio %s: %w", artifact.Name(), err)
	}
	return nil
}

func toUpdate(msg *tgbotapi.Message) chat.Update {
	u := chat.Update{
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}
	if msg.Chat != nil {
		u.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		u.From = msg.From.UserName
	}
	return u
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// apiLogger routes the Bot API client's log lines into slog
type apiLogger struct {
	logger *slog.Logger
}

func (l *apiLogger) Println(v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)), slog.String("component", "telegram"))
}

func (l *apiLogger) Printf(format string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "telegram"))
}

// Ensure Bot implements chat.Messenger
var _ chat.Messenger = (*Bot)(nil)
