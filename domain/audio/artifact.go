package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultCodec is the container every download is normalized to
const DefaultCodec = "mp3"

// DefaultBitrate is the default audio quality for downloads and shifted output
const DefaultBitrate = "192k"

// Track describes a source resolved by the metadata probe, before any transfer
type Track struct {
	URL      string
	Title    string
	Uploader string
	Duration time.Duration
	// Path is the deterministic location of the downloaded file
	Path string
}

// Artifact is a file produced by either pipeline stage
type Artifact struct {
	Path      string
	Title     string
	Performer string
	Duration  time.Duration
	Semitones int
	// Cached is true when the file already existed and no work was done
	Cached bool
}

// Name returns the artifact's base filename
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// OffsetTag formats a semitone offset as "(ST +3)" or "(ST -2)"
func OffsetTag(semitones int) string {
	sign := "+"
	if semitones < 0 {
		sign = "-"
		semitones = -semitones
	}
	return fmt.Sprintf("(ST %s%d)", sign, semitones)
}

// ShiftedFilename prefixes filename with the offset tag
func ShiftedFilename(filename string, semitones int) string {
	return OffsetTag(semitones) + " " + filename
}

// ShiftedPath returns the sibling path of source holding the shifted variant
func ShiftedPath(source string, semitones int) string {
	return filepath.Join(filepath.Dir(source), ShiftedFilename(filepath.Base(source), semitones))
}

// WithExtension replaces the extension of path with ext (given without the dot)
func WithExtension(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}
