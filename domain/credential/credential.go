package credential

import (
	"context"
	"errors"
)

// Errors for token resolution
var (
	ErrNoToken  = errors.New("no bot token available")
	ErrDecrypt  = errors.New("failed to decrypt token file")
	ErrNoPrompt = errors.New("cannot prompt for token without an interactive terminal")
)

// Decrypter decrypts an encrypted token file with a private key
// This is a port that can be implemented by different infrastructure adapters
type Decrypter interface {
	Decrypt(ctx context.Context, privateKeyPath, encryptedPath string) ([]byte, error)
}

// SecretPrompter asks the operator for a secret without echoing it
type SecretPrompter interface {
	Password(message string) (string, error)
}

// Source identifies where a token was resolved from
type Source string

const (
	SourceEncryptedFile Source = "encrypted-file"
	SourceEnvironment   Source = "environment"
	SourcePrompt        Source = "prompt"
)
