//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tonebot/application/dispatch"
	"tonebot/application/pipeline"
	"tonebot/domain/audio"
	"tonebot/domain/chat"
	"tonebot/infrastructure/filesystem"

	"github.com/cucumber/godog"
)

// fakeDownloader writes a placeholder file in place of yt-dlp
type fakeDownloader struct {
	titles map[string]string
	err    error
}

func (d *fakeDownloader) Probe(ctx context.Context, url string, outputDir string) (*audio.Track, error) {
	if d.err != nil {
		return nil, d.err
	}
	title, ok := d.titles[url]
	if !ok {
		return nil, fmt.Errorf("unsupported URL: %s", url)
	}
	return &audio.Track{URL: url, Title: title, Path: filepath.Join(outputDir, title+".mp3")}, nil
}

func (d *fakeDownloader) Download(ctx context.Context, track *audio.Track) error {
	return os.WriteFile(track.Path, []byte("original audio"), 0644)
}

// fakeShifter writes a tagged copy in place of ffmpeg
type fakeShifter struct {
	calls int
}

func (s *fakeShifter) Shift(ctx context.Context, req *audio.ShiftRequest) error {
	s.calls++
	data, err := os.ReadFile(req.SourcePath)
	if err != nil {
		return err
	}
	return os.WriteFile(req.OutputPath, append(data, []byte(audio.OffsetTag(req.Semitones))...), 0644)
}

type reply struct {
	text  string
	audio *audio.Artifact
}

// recordingMessenger captures replies in order
type recordingMessenger struct {
	replies []reply
}

func (m *recordingMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	m.replies = append(m.replies, reply{text: text})
	return nil
}

func (m *recordingMessenger) SendAudio(ctx context.Context, chatID int64, artifact *audio.Artifact) error {
	m.replies = append(m.replies, reply{audio: artifact})
	return nil
}

type conversationContext struct {
	tempDir    string
	downloader *fakeDownloader
	shifter    *fakeShifter
	messenger  *recordingMessenger
	dispatcher *dispatch.Dispatcher
	modTimes   map[string]time.Time
	cursor     int
}

var SharedConversationContext = &conversationContext{}

func InitializeConversationScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedConversationContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "conversation-test-*")
		if err != nil {
			return c, err
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		checker := filesystem.NewChecker()

		testCtx.tempDir = tempDir
		testCtx.downloader = &fakeDownloader{titles: make(map[string]string)}
		testCtx.shifter = &fakeShifter{}
		testCtx.messenger = &recordingMessenger{}
		testCtx.modTimes = make(map[string]time.Time)
		testCtx.cursor = 0

		svc := pipeline.NewService(testCtx.downloader, testCtx.shifter, checker, tempDir, pipeline.WithLogger(logger))
		testCtx.dispatcher = dispatch.NewDispatcher(testCtx.messenger, svc, dispatch.WithLogger(logger))
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		SharedConversationContext = &conversationContext{}
		return c, nil
	})

	ctx.Step(`^the video "([^"]*)" has the title "([^"]*)"$`, testCtx.theVideoHasTheTitle)
	ctx.Step(`^downloads fail with "([^"]*)"$`, testCtx.downloadsFailWith)
	ctx.Step(`^downloads work again$`, testCtx.downloadsWorkAgain)
	ctx.Step(`^I send "([^"]*)"$`, testCtx.iSend)
	ctx.Step(`^the bot replies "([^"]*)"$`, testCtx.theBotReplies)
	ctx.Step(`^the next reply explains the "([^"]*)" format$`, testCtx.theNextReplyExplainsTheFormat)
	ctx.Step(`^the bot replies with an error$`, testCtx.theBotRepliesWithAnError)
	ctx.Step(`^the bot sends the audio file "([^"]*)"$`, testCtx.theBotSendsTheAudioFile)
	ctx.Step(`^the bot sends the audio file "([^"]*)" twice$`, testCtx.theBotSendsTheAudioFileTwice)
	ctx.Step(`^no audio is sent$`, testCtx.noAudioIsSent)
	ctx.Step(`^no shifted file exists$`, testCtx.noShiftedFileExists)
	ctx.Step(`^the pitch was shifted only once$`, testCtx.thePitchWasShiftedOnlyOnce)
	ctx.Step(`^the file "([^"]*)" was not rewritten$`, testCtx.theFileWasNotRewritten)
}

func (c *conversationContext) theVideoHasTheTitle(url, title string) error {
	c.downloader.titles[url] = title
	return nil
}

func (c *conversationContext) downloadsFailWith(message string) error {
	c.downloader.err = errors.New(message)
	return nil
}

func (c *conversationContext) downloadsWorkAgain() error {
	c.downloader.err = nil
	return nil
}

func (c *conversationContext) iSend(text string) error {
	c.dispatcher.Handle(context.Background(), chat.Update{ChatID: 1, Text: text})
	c.recordModTimes()
	return nil
}

// recordModTimes remembers the first modification time seen for each shifted file
func (c *conversationContext) recordModTimes() {
	entries, _ := filesystem.NewChecker().List(c.tempDir)
	for _, e := range entries {
		if _, seen := c.modTimes[e.Name]; !seen && e.Semitones != "" {
			c.modTimes[e.Name] = e.ModTime
		}
	}
}

// next returns the next unread reply
func (c *conversationContext) next() (reply, error) {
	if c.cursor >= len(c.messenger.replies) {
		return reply{}, fmt.Errorf("expected another reply, got only %d", len(c.messenger.replies))
	}
	r := c.messenger.replies[c.cursor]
	c.cursor++
	return r, nil
}

func (c *conversationContext) theBotReplies(expected string) error {
	r, err := c.next()
	if err != nil {
		return err
	}
	if r.text != expected {
		return fmt.Errorf("expected reply %q, got %q", expected, r.text)
	}
	return nil
}

func (c *conversationContext) theNextReplyExplainsTheFormat(format string) error {
	r, err := c.next()
	if err != nil {
		return err
	}
	if !strings.Contains(r.text, format) {
		return fmt.Errorf("expected help mentioning %q, got %q", format, r.text)
	}
	return nil
}

func (c *conversationContext) theBotRepliesWithAnError() error {
	r, err := c.next()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(r.text, "Error: ") {
		return fmt.Errorf("expected an error reply, got %q", r.text)
	}
	return nil
}

func (c *conversationContext) audioReplies() []*audio.Artifact {
	var out []*audio.Artifact
	for _, r := range c.messenger.replies {
		if r.audio != nil {
			out = append(out, r.audio)
		}
	}
	return out
}

func (c *conversationContext) theBotSendsTheAudioFile(name string) error {
	for _, a := range c.audioReplies() {
		if a.Name() == name {
			if _, err := os.Stat(a.Path); err != nil {
				return fmt.Errorf("sent file %s does not exist: %w", a.Path, err)
			}
			return nil
		}
	}
	return fmt.Errorf("audio %q was not sent", name)
}

func (c *conversationContext) theBotSendsTheAudioFileTwice(name string) error {
	count := 0
	for _, a := range c.audioReplies() {
		if a.Name() == name {
			count++
		}
	}
	if count != 2 {
		return fmt.Errorf("expected %q to be sent twice, sent %d times", name, count)
	}
	return nil
}

func (c *conversationContext) noAudioIsSent() error {
	if n := len(c.audioReplies()); n != 0 {
		return fmt.Errorf("expected no audio, got %d", n)
	}
	return nil
}

func (c *conversationContext) noShiftedFileExists() error {
	entries, err := filesystem.NewChecker().List(c.tempDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Semitones != "" {
			return fmt.Errorf("unexpected shifted file %s", e.Name)
		}
	}
	return nil
}

func (c *conversationContext) thePitchWasShiftedOnlyOnce() error {
	if c.shifter.calls != 1 {
		return fmt.Errorf("expected 1 pitch shift, got %d", c.shifter.calls)
	}
	return nil
}

func (c *conversationContext) theFileWasNotRewritten(name string) error {
	first, ok := c.modTimes[name]
	if !ok {
		return fmt.Errorf("file %s was never created", name)
	}
	info, err := os.Stat(filepath.Join(c.tempDir, name))
	if err != nil {
		return err
	}
	if !info.ModTime().Equal(first) {
		return fmt.Errorf("file %s was rewritten: %v != %v", name, info.ModTime(), first)
	}
	return nil
}
