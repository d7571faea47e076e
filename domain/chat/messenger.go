package chat

import (
	"context"

	"tonebot/domain/audio"
)

// Messenger defines the interface for replying within a conversation
// This is a port that can be implemented by different infrastructure adapters
type Messenger interface {
	// SendText replies with a plain text message
	SendText(ctx context.Context, chatID int64, text string) error

	// SendAudio replies with the artifact as an audio attachment
	SendAudio(ctx context.Context, chatID int64, artifact *audio.Artifact) error
}
