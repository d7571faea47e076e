package audio

import "context"

// Downloader resolves and fetches audio from a remote source
// This is a port that can be implemented by different infrastructure adapters
type Downloader interface {
	// Probe fetches metadata only and computes the output path under outputDir
	Probe(ctx context.Context, url string, outputDir string) (*Track, error)

	// Download transfers and transcodes the track to track.Path
	Download(ctx context.Context, track *Track) error
}

// ShiftRequest represents a request to shift the pitch of a local audio file
type ShiftRequest struct {
	SourcePath string
	OutputPath string
	Semitones  int
	Bitrate    string
}

// PitchShifter changes the pitch of an audio file while keeping its duration
type PitchShifter interface {
	Shift(ctx context.Context, req *ShiftRequest) error
}

// FileChecker defines the interface for checking file existence
type FileChecker interface {
	// Exists returns true if the file exists
	Exists(path string) bool
}
