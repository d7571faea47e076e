package audio

import "errors"

// Errors returned while parsing a request message
var (
	ErrEmptyRequest  = errors.New("message is empty; send a URL optionally followed by a number of semitones")
	ErrTooManyTokens = errors.New("invalid text format. It must be a URL only or a URL plus a number indicating the tone shift")
	ErrInvalidOffset = errors.New("semitone offset must be a whole number between -48 and 48")
)
