package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"tonebot/domain/archive"
	"tonebot/domain/audio"
	"tonebot/domain/chat"
)

// --- Mock implementations for testing ---

type sentMessage struct {
	chatID int64
	text   string
	audio  *audio.Artifact
}

// mockMessenger implements chat.Messenger for testing
type mockMessenger struct {
	sent     []sentMessage
	audioErr error
}

func (m *mockMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (m *mockMessenger) SendAudio(ctx context.Context, chatID int64, artifact *audio.Artifact) error {
	if m.audioErr != nil {
		return m.audioErr
	}
	m.sent = append(m.sent, sentMessage{chatID: chatID, audio: artifact})
	return nil
}

func (m *mockMessenger) texts() []string {
	var out []string
	for _, s := range m.sent {
		if s.audio == nil {
			out = append(out, s.text)
		}
	}
	return out
}

func (m *mockMessenger) audios() []*audio.Artifact {
	var out []*audio.Artifact
	for _, s := range m.sent {
		if s.audio != nil {
			out = append(out, s.audio)
		}
	}
	return out
}

// mockPipeline implements Pipeline for testing
type mockPipeline struct {
	nilArtifact bool
	downloadErr error
	shiftErr    error
	downloads   []string
	shifts      []int
}

func (m *mockPipeline) Download(ctx context.Context, url string) (*audio.Artifact, error) {
	m.downloads = append(m.downloads, url)
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	if m.nilArtifact {
		return nil, nil
	}
	return &audio.Artifact{Path: "downloads/Song.mp3", Title: "Song"}, nil
}

func (m *mockPipeline) Shift(ctx context.Context, original *audio.Artifact, semitones int) (*audio.Artifact, error) {
	m.shifts = append(m.shifts, semitones)
	if m.shiftErr != nil {
		return nil, m.shiftErr
	}
	if semitones == 0 {
		return original, nil
	}
	return &audio.Artifact{
		Path:      audio.ShiftedPath(original.Path, semitones),
		Title:     original.Title,
		Semitones: semitones,
	}, nil
}

// mockArchiver implements Archiver for testing
type mockArchiver struct {
	err   error
	paths []string
}

func (m *mockArchiver) Archive(ctx context.Context, path string) (*archive.UploadResult, error) {
	m.paths = append(m.paths, path)
	if m.err != nil {
		return nil, m.err
	}
	return &archive.UploadResult{ShareableURL: "https://drive.google.com/file/d/abc/view"}, nil
}

// mockObserver implements UpdateObserver for testing
type mockObserver struct {
	handlers []string
}

func (m *mockObserver) ObserveUpdate(handler string) {
	m.handlers = append(m.handlers, handler)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(messenger *mockMessenger, pipeline *mockPipeline, opts ...Option) *Dispatcher {
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewDispatcher(messenger, pipeline, opts...)
}

func TestDispatcher_StartSendsIntroThenHelp(t *testing.T) {
	messenger := &mockMessenger{}
	observer := &mockObserver{}
	d := newTestDispatcher(messenger, &mockPipeline{}, WithObserver(observer))

	d.Handle(context.Background(), chat.Update{ChatID: 7, Text: "/start"})

	texts := messenger.texts()
	if len(texts) != 2 {
		t.Fatalf("sent %d messages, want 2: %v", len(texts), texts)
	}
	if texts[0] != IntroText {
		t.Errorf("first message = %q, want intro", texts[0])
	}
	if texts[1] != HelpText {
		t.Errorf("second message = %q, want help", texts[1])
	}
	if messenger.sent[0].chatID != 7 {
		t.Errorf("chatID = %d, want 7", messenger.sent[0].chatID)
	}
	if len(observer.handlers) != 1 || observer.handlers[0] != HandlerStart {
		t.Errorf("observed = %v", observer.handlers)
	}
}

func TestDispatcher_Help(t *testing.T) {
	messenger := &mockMessenger{}
	d := newTestDispatcher(messenger, &mockPipeline{})

	d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "/help@tonebot"})

	texts := messenger.texts()
	if len(texts) != 1 || texts[0] != HelpText {
		t.Fatalf("texts = %v, want only help", texts)
	}
	for _, want := range []string{"<url> [semitones]", " 1'", " -2'", "original audio"} {
		if !strings.Contains(HelpText, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}

func TestDispatcher_UnknownCommandIsIgnored(t *testing.T) {
	messenger := &mockMessenger{}
	pipeline := &mockPipeline{}
	observer := &mockObserver{}
	d := newTestDispatcher(messenger, pipeline, WithObserver(observer))

	d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "/settings"})

	if len(messenger.sent) != 0 {
		t.Errorf("sent %v, want nothing", messenger.sent)
	}
	if len(pipeline.downloads) != 0 {
		t.Error("unknown command must not reach the pipeline")
	}
	if len(observer.handlers) != 1 || observer.handlers[0] != HandlerIgnored {
		t.Errorf("observed = %v", observer.handlers)
	}
}

func TestDispatcher_BareSlashAsksForURL(t *testing.T) {
	for _, text := range []string{"/", " / ", "/@tonebot", "/ https://youtu.be/abc"} {
		t.Run(text, func(t *testing.T) {
			messenger := &mockMessenger{}
			pipeline := &mockPipeline{}
			d := newTestDispatcher(messenger, pipeline)

			d.Handle(context.Background(), chat.Update{ChatID: 1, Text: text})

			texts := messenger.texts()
			if len(texts) != 1 || texts[0] != URLHintText {
				t.Errorf("texts = %q, want only the URL hint", texts)
			}
			if len(pipeline.downloads) != 0 {
				t.Errorf("downloads = %v, want none", pipeline.downloads)
			}
		})
	}
}

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	messenger := &mockMessenger{}
	d := newTestDispatcher(messenger, &mockPipeline{nilArtifact: true})

	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped Handle: %v", r)
			}
		}()
		d.Handle(context.Background(), chat.Update{ChatID: 9, Text: "https://youtu.be/abc 2"})
	}()

	texts := messenger.texts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "Error: internal error: ") {
		t.Fatalf("texts = %q, want one internal error reply", texts)
	}
	if messenger.sent[0].chatID != 9 {
		t.Errorf("chatID = %d, want 9", messenger.sent[0].chatID)
	}

	// the dispatcher keeps serving after a recovered panic
	d.pipeline = &mockPipeline{}
	d.Handle(context.Background(), chat.Update{ChatID: 9, Text: "https://youtu.be/abc"})
	if len(messenger.audios()) != 1 {
		t.Errorf("audios = %v, want one after recovery", messenger.audios())
	}
}

func TestDispatcher_Text(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		lenient       bool
		downloadErr   error
		shiftErr      error
		wantTexts     []string
		wantAudioPath string
		wantShifts    []int
	}{
		{
			name:          "original audio",
			text:          "https://youtu.be/abc",
			wantTexts:     []string{"Downloaded content: Song.mp3"},
			wantAudioPath: "downloads/Song.mp3",
			wantShifts:    []int{0},
		},
		{
			name:          "shifted down",
			text:          "https://youtu.be/abc -2",
			wantTexts:     []string{"Downloaded content: Song.mp3"},
			wantAudioPath: "downloads/(ST -2) Song.mp3",
			wantShifts:    []int{-2},
		},
		{
			name:      "non-integer offset",
			text:      "https://youtu.be/abc up",
			wantTexts: []string{`Error: semitone offset must be a whole number between -48 and 48: "up"`},
		},
		{
			name:      "offset out of range",
			text:      "https://youtu.be/abc 200000",
			wantTexts: []string{"Error: semitone offset must be a whole number between -48 and 48: 200000"},
		},
		{
			name:      "too many tokens aborts",
			text:      "https://youtu.be/abc 1 extra",
			wantTexts: []string{"Error: invalid text format. It must be a URL only or a URL plus a number indicating the tone shift (got 3 parts)"},
		},
		{
			name:    "too many tokens proceeds when lenient",
			text:    "https://youtu.be/abc 1 extra",
			lenient: true,
			wantTexts: []string{
				"Error: invalid text format. It must be a URL only or a URL plus a number indicating the tone shift (got 3 parts)",
				"Downloaded content: Song.mp3",
			},
			wantAudioPath: "downloads/(ST +1) Song.mp3",
			wantShifts:    []int{1},
		},
		{
			name:        "download failure",
			text:        "https://example.com/nope",
			downloadErr: errors.New("yt-dlp metadata probe failed: Unsupported URL"),
			wantTexts:   []string{"Error: yt-dlp metadata probe failed: Unsupported URL"},
		},
		{
			name:       "shift failure",
			text:       "https://youtu.be/abc 3",
			shiftErr:   errors.New("pitch shift by 3 semitones failed: ffmpeg exited 1"),
			wantTexts:  []string{"Downloaded content: Song.mp3", "Error: pitch shift by 3 semitones failed: ffmpeg exited 1"},
			wantShifts: []int{3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messenger := &mockMessenger{}
			pipeline := &mockPipeline{downloadErr: tt.downloadErr, shiftErr: tt.shiftErr}
			d := newTestDispatcher(messenger, pipeline, WithLenientInput(tt.lenient))

			d.Handle(context.Background(), chat.Update{ChatID: 42, Text: tt.text})

			texts := messenger.texts()
			if len(texts) != len(tt.wantTexts) {
				t.Fatalf("texts = %q, want %q", texts, tt.wantTexts)
			}
			for i := range texts {
				if texts[i] != tt.wantTexts[i] {
					t.Errorf("text[%d] = %q, want %q", i, texts[i], tt.wantTexts[i])
				}
			}

			audios := messenger.audios()
			if tt.wantAudioPath == "" {
				if len(audios) != 0 {
					t.Errorf("sent audio %v, want none", audios)
				}
			} else if len(audios) != 1 || audios[0].Path != tt.wantAudioPath {
				t.Errorf("audios = %v, want %s", audios, tt.wantAudioPath)
			}

			if len(pipeline.shifts) != len(tt.wantShifts) {
				t.Fatalf("shifts = %v, want %v", pipeline.shifts, tt.wantShifts)
			}
			for i := range pipeline.shifts {
				if pipeline.shifts[i] != tt.wantShifts[i] {
					t.Errorf("shift[%d] = %d, want %d", i, pipeline.shifts[i], tt.wantShifts[i])
				}
			}
		})
	}
}

func TestDispatcher_NoticePrecedesAttachment(t *testing.T) {
	messenger := &mockMessenger{}
	d := newTestDispatcher(messenger, &mockPipeline{})

	d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "https://youtu.be/abc"})

	if len(messenger.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(messenger.sent))
	}
	if messenger.sent[0].text == "" || messenger.sent[1].audio == nil {
		t.Errorf("want notice then attachment, got %+v", messenger.sent)
	}
}

func TestDispatcher_NoticeIncludesSize(t *testing.T) {
	messenger := &mockMessenger{}
	d := newTestDispatcher(messenger, &mockPipeline{}, WithSizeFunc(func(string) int64 { return 4_200_000 }))

	d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "https://youtu.be/abc"})

	if got := messenger.texts()[0]; got != "Downloaded content: Song.mp3 (4.2 MB)" {
		t.Errorf("notice = %q", got)
	}
}

func TestDispatcher_SendAudioFailureIsReported(t *testing.T) {
	messenger := &mockMessenger{audioErr: errors.New("Request Entity Too Large")}
	d := newTestDispatcher(messenger, &mockPipeline{})

	d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "https://youtu.be/abc"})

	texts := messenger.texts()
	if len(texts) != 2 || texts[1] != "Error: failed to send audio: Request Entity Too Large" {
		t.Errorf("texts = %q", texts)
	}
}

func TestDispatcher_Archive(t *testing.T) {
	tests := []struct {
		name       string
		archiveErr error
		wantLast   string
	}{
		{
			name:     "link appended after attachment",
			wantLast: "Archived: https://drive.google.com/file/d/abc/view",
		},
		{
			name:       "archive failure does not fail the request",
			archiveErr: errors.New("drive unavailable"),
			wantLast:   "Downloaded content: Song.mp3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messenger := &mockMessenger{}
			archiver := &mockArchiver{err: tt.archiveErr}
			d := newTestDispatcher(messenger, &mockPipeline{}, WithArchiver(archiver))

			d.Handle(context.Background(), chat.Update{ChatID: 1, Text: "https://youtu.be/abc 2"})

			if len(archiver.paths) != 1 || archiver.paths[0] != "downloads/(ST +2) Song.mp3" {
				t.Errorf("archived = %v", archiver.paths)
			}
			if len(messenger.audios()) != 1 {
				t.Error("attachment must be delivered regardless of archive outcome")
			}
			texts := messenger.texts()
			if got := texts[len(texts)-1]; got != tt.wantLast {
				t.Errorf("last text = %q, want %q", got, tt.wantLast)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	got := ErrorText(audio.ErrEmptyRequest)
	if !strings.HasPrefix(got, "Error: message is empty") {
		t.Errorf("ErrorText() = %q", got)
	}
}
