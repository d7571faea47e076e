package filesystem

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tonebot/domain/audio"
)

// Checker implements audio.FileChecker using the os package
type Checker struct{}

// NewChecker creates a new filesystem checker
func NewChecker() *Checker {
	return &Checker{}
}

// Exists returns true if a regular, non-empty file exists at path
func (c *Checker) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Size returns the size of the file in bytes, or 0 if it cannot be read
func (c *Checker) Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Entry describes a cached artifact on disk
type Entry struct {
	Name      string
	Size      int64
	ModTime   time.Time
	Semitones string // offset tag for shifted variants, "" for originals
}

// List returns the audio artifacts in dir sorted by name. Temporary files
// left by interrupted work are skipped.
func (c *Checker) List(dir string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var result []Entry
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		result = append(result, Entry{
			Name:      e.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Semitones: offsetTag(e.Name()),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// offsetTag extracts "(ST +3)" from "(ST +3) Song.mp3"
func offsetTag(name string) string {
	if !strings.HasPrefix(name, "(ST ") {
		return ""
	}
	end := strings.Index(name, ")")
	if end < 0 {
		return ""
	}
	return name[:end+1]
}

// EnsureDir creates dir if it does not exist
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Clean(dir), 0755)
}

// Ensure Checker implements audio.FileChecker
var _ audio.FileChecker = (*Checker)(nil)
