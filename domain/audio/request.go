package audio

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSemitones bounds the accepted offset in either direction. Keep in sync
// with ErrInvalidOffset.
const MaxSemitones = 48

// Request represents a parsed free-text message: a source URL and an optional
// semitone offset
type Request struct {
	URL       string
	Semitones int
}

// ParseRequest splits text on whitespace into a URL and an optional signed
// semitone offset.
//
// When the text contains more than two tokens the request built from the first
// two is still returned together with an error wrapping ErrTooManyTokens, so the
// caller decides whether to abort or carry on.
func ParseRequest(text string) (*Request, error) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return nil, ErrEmptyRequest
	}

	req := &Request{URL: parts[0]}
	if len(parts) >= 2 {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOffset, parts[1])
		}
		if n > MaxSemitones || n < -MaxSemitones {
			return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, n)
		}
		req.Semitones = n
	}

	if len(parts) > 2 {
		return req, fmt.Errorf("%w (got %d parts)", ErrTooManyTokens, len(parts))
	}

	return req, nil
}

// IsShifted returns true if the request asks for a pitch change
func (r *Request) IsShifted() bool {
	return r.Semitones != 0
}
