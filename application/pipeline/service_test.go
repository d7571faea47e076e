package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tonebot/domain/audio"
)

// --- Mock implementations for testing ---

// mockFileChecker implements audio.FileChecker for testing
type mockFileChecker struct {
	mu            sync.Mutex
	existingFiles map[string]bool
}

func newMockFileChecker(paths ...string) *mockFileChecker {
	m := &mockFileChecker{existingFiles: make(map[string]bool)}
	for _, p := range paths {
		m.existingFiles[p] = true
	}
	return m
}

func (m *mockFileChecker) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existingFiles[path]
}

func (m *mockFileChecker) create(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existingFiles[path] = true
}

// mockDownloader implements audio.Downloader for testing
type mockDownloader struct {
	files       *mockFileChecker
	track       audio.Track
	probeErr    error
	downloadErr error
	probes      int
	downloads   int
}

func (m *mockDownloader) Probe(ctx context.Context, url string, outputDir string) (*audio.Track, error) {
	m.probes++
	if m.probeErr != nil {
		return nil, m.probeErr
	}
	track := m.track
	track.URL = url
	track.Path = filepath.Join(outputDir, track.Title+".mp3")
	return &track, nil
}

func (m *mockDownloader) Download(ctx context.Context, track *audio.Track) error {
	m.downloads++
	if m.downloadErr != nil {
		return m.downloadErr
	}
	m.files.create(track.Path)
	return nil
}

// mockShifter implements audio.PitchShifter for testing
type mockShifter struct {
	mu       sync.Mutex
	files    *mockFileChecker
	err      error
	started  chan struct{}
	release  chan struct{}
	requests []audio.ShiftRequest
	ctxErrs  []error
}

func (m *mockShifter) Shift(ctx context.Context, req *audio.ShiftRequest) error {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.files.create(req.OutputPath)
	return nil
}

func (m *mockShifter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// recordingObserver implements StageObserver for testing
type recordingObserver struct {
	mu     sync.Mutex
	stages []string
}

func (r *recordingObserver) ObserveStage(stage string, cached bool, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := "done"
	if err != nil {
		outcome = "failed"
	} else if cached {
		outcome = "cached"
	}
	r.stages = append(r.stages, stage+":"+outcome)
}

func newTestService(files *mockFileChecker, dl *mockDownloader, sh *mockShifter, obs StageObserver) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(dl, sh, files, "downloads", WithLogger(logger), WithObserver(obs), WithBitrate("256k"))
}

func TestService_Download(t *testing.T) {
	tests := []struct {
		name          string
		existing      []string
		probeErr      error
		downloadErr   error
		wantErr       bool
		wantCached    bool
		wantDownloads int
		wantStage     string
	}{
		{
			name:          "downloads when file is missing",
			wantDownloads: 1,
			wantStage:     "download:done",
		},
		{
			name:          "reuses existing file",
			existing:      []string{"downloads/Song.mp3"},
			wantCached:    true,
			wantDownloads: 0,
			wantStage:     "download:cached",
		},
		{
			name:      "probe failure",
			probeErr:  errors.New("ERROR: Unsupported URL"),
			wantErr:   true,
			wantStage: "download:failed",
		},
		{
			name:          "download failure",
			downloadErr:   errors.New("HTTP Error 403"),
			wantErr:       true,
			wantDownloads: 1,
			wantStage:     "download:failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := newMockFileChecker(tt.existing...)
			dl := &mockDownloader{
				files:       files,
				track:       audio.Track{Title: "Song", Uploader: "Band", Duration: 3 * time.Minute},
				probeErr:    tt.probeErr,
				downloadErr: tt.downloadErr,
			}
			obs := &recordingObserver{}
			svc := newTestService(files, dl, &mockShifter{files: files}, obs)

			got, err := svc.Download(context.Background(), "https://youtu.be/abc")

			if len(obs.stages) != 1 || obs.stages[0] != tt.wantStage {
				t.Errorf("observed stages = %v, want [%s]", obs.stages, tt.wantStage)
			}
			if dl.downloads != tt.wantDownloads {
				t.Errorf("downloads = %d, want %d", dl.downloads, tt.wantDownloads)
			}
			if dl.probes != 1 {
				t.Errorf("probes = %d, want 1 (metadata probe always runs)", dl.probes)
			}

			if tt.wantErr {
				if err == nil {
					t.Fatal("Download() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Download() unexpected error: %v", err)
			}

			if got.Path != "downloads/Song.mp3" {
				t.Errorf("Path = %q", got.Path)
			}
			if got.Cached != tt.wantCached {
				t.Errorf("Cached = %v, want %v", got.Cached, tt.wantCached)
			}
			if got.Performer != "Band" || got.Duration != 3*time.Minute {
				t.Errorf("metadata not carried over: %+v", got)
			}
		})
	}
}

func TestService_ShiftZeroOffsetReturnsOriginal(t *testing.T) {
	files := newMockFileChecker("downloads/Song.mp3")
	sh := &mockShifter{files: files}
	obs := &recordingObserver{}
	svc := newTestService(files, &mockDownloader{files: files}, sh, obs)

	original := &audio.Artifact{Path: "downloads/Song.mp3", Title: "Song"}
	got, err := svc.Shift(context.Background(), original, 0)
	if err != nil {
		t.Fatalf("Shift() unexpected error: %v", err)
	}

	if got != original {
		t.Errorf("Shift() = %+v, want the original artifact", got)
	}
	if sh.calls() != 0 {
		t.Errorf("shifter called %d times, want 0", sh.calls())
	}
	if len(obs.stages) != 0 {
		t.Errorf("zero offset should not record a shift stage, got %v", obs.stages)
	}
}

func TestService_ShiftNamesOutputByOffset(t *testing.T) {
	tests := []struct {
		semitones int
		wantPath  string
	}{
		{-2, "downloads/(ST -2) Song.mp3"},
		{3, "downloads/(ST +3) Song.mp3"},
	}

	for _, tt := range tests {
		t.Run(tt.wantPath, func(t *testing.T) {
			files := newMockFileChecker("downloads/Song.mp3")
			sh := &mockShifter{files: files}
			svc := newTestService(files, &mockDownloader{files: files}, sh, nil)

			original := &audio.Artifact{Path: "downloads/Song.mp3", Title: "Song", Duration: time.Minute}
			got, err := svc.Shift(context.Background(), original, tt.semitones)
			if err != nil {
				t.Fatalf("Shift() unexpected error: %v", err)
			}

			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
			if got.Semitones != tt.semitones || got.Duration != time.Minute {
				t.Errorf("artifact = %+v", got)
			}
			if sh.requests[0].Bitrate != "256k" || sh.requests[0].SourcePath != "downloads/Song.mp3" {
				t.Errorf("shift request = %+v", sh.requests[0])
			}
		})
	}
}

func TestService_ShiftIsIdempotent(t *testing.T) {
	files := newMockFileChecker("downloads/Song.mp3")
	sh := &mockShifter{files: files}
	obs := &recordingObserver{}
	svc := newTestService(files, &mockDownloader{files: files}, sh, obs)
	original := &audio.Artifact{Path: "downloads/Song.mp3"}

	first, err := svc.Shift(context.Background(), original, -1)
	if err != nil {
		t.Fatalf("first Shift() unexpected error: %v", err)
	}
	second, err := svc.Shift(context.Background(), original, -1)
	if err != nil {
		t.Fatalf("second Shift() unexpected error: %v", err)
	}

	if first.Path != second.Path {
		t.Errorf("paths differ: %q vs %q", first.Path, second.Path)
	}
	if sh.calls() != 1 {
		t.Errorf("shifter called %d times, want 1", sh.calls())
	}
	if first.Cached || !second.Cached {
		t.Errorf("Cached = %v/%v, want false/true", first.Cached, second.Cached)
	}
	want := []string{"shift:done", "shift:cached"}
	if len(obs.stages) != 2 || obs.stages[0] != want[0] || obs.stages[1] != want[1] {
		t.Errorf("observed stages = %v, want %v", obs.stages, want)
	}
}

func TestService_ShiftFailure(t *testing.T) {
	files := newMockFileChecker("downloads/Song.mp3")
	sh := &mockShifter{files: files, err: errors.New("ffmpeg pitch shift failed")}
	svc := newTestService(files, &mockDownloader{files: files}, sh, nil)

	_, err := svc.Shift(context.Background(), &audio.Artifact{Path: "downloads/Song.mp3"}, 4)
	if err == nil {
		t.Fatal("Shift() expected error, got nil")
	}
	if files.Exists("downloads/(ST +4) Song.mp3") {
		t.Error("failed shift must not leave an artifact")
	}
}

func TestService_ConcurrentShiftsShareOneExecution(t *testing.T) {
	files := newMockFileChecker("downloads/Song.mp3")
	sh := &mockShifter{
		files:   files,
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	svc := newTestService(files, &mockDownloader{files: files}, sh, nil)
	original := &audio.Artifact{Path: "downloads/Song.mp3"}

	var wg sync.WaitGroup
	paths := make([]string, 2)
	cached := make([]bool, 2)
	errs := make([]error, 2)
	run := func(i int) {
		defer wg.Done()
		a, err := svc.Shift(context.Background(), original, 2)
		errs[i] = err
		if a != nil {
			paths[i] = a.Path
			cached[i] = a.Cached
		}
	}

	wg.Add(2)
	go run(0)
	<-sh.started
	go run(1)
	time.Sleep(50 * time.Millisecond)
	close(sh.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Shift() #%d unexpected error: %v", i, err)
		}
	}
	if paths[0] != paths[1] {
		t.Errorf("paths differ: %v", paths)
	}
	if sh.calls() != 1 {
		t.Errorf("shifter called %d times, want 1", sh.calls())
	}
	if cached[0] || !cached[1] {
		t.Errorf("cached = %v, want only the waiting caller to report a cache hit", cached)
	}
}

func TestService_SharedShiftSurvivesFirstCallerCancel(t *testing.T) {
	files := newMockFileChecker("downloads/Song.mp3")
	sh := &mockShifter{
		files:   files,
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	svc := newTestService(files, &mockDownloader{files: files}, sh, nil)
	original := &audio.Artifact{Path: "downloads/Song.mp3"}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Shift(ctx, original, 2)
		firstErr <- err
	}()
	<-sh.started

	second := make(chan *audio.Artifact, 1)
	secondErr := make(chan error, 1)
	go func() {
		a, err := svc.Shift(context.Background(), original, 2)
		second <- a
		secondErr <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Shift() error = %v, want context.Canceled", err)
	}

	close(sh.release)
	a := <-second
	if err := <-secondErr; err != nil {
		t.Fatalf("second Shift() unexpected error: %v", err)
	}
	if a.Path != "downloads/(ST +2) Song.mp3" || !a.Cached {
		t.Errorf("second Shift() = %+v, want shared cached artifact", a)
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.ctxErrs) != 1 || sh.ctxErrs[0] != nil {
		t.Errorf("shifter ctx errors = %v, want a single uncancelled run", sh.ctxErrs)
	}
}

func TestService_Process(t *testing.T) {
	files := newMockFileChecker()
	dl := &mockDownloader{files: files, track: audio.Track{Title: "Song"}}
	sh := &mockShifter{files: files}
	svc := newTestService(files, dl, sh, nil)

	result, err := svc.Process(context.Background(), &audio.Request{URL: "https://youtu.be/abc", Semitones: -3})
	if err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	if result.Original.Path != "downloads/Song.mp3" {
		t.Errorf("Original.Path = %q", result.Original.Path)
	}
	if result.Output.Path != "downloads/(ST -3) Song.mp3" {
		t.Errorf("Output.Path = %q", result.Output.Path)
	}
	if svc.OutputDir() != "downloads" {
		t.Errorf("OutputDir() = %q", svc.OutputDir())
	}
}
