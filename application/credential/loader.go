package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"tonebot/domain/credential"
)

// Token is a resolved bot token and where it came from
type Token struct {
	Value  string
	Source credential.Source
}

// Sources locates the places a token may be read from
type Sources struct {
	PrivateKeyFile string
	TokenFile      string
	EnvVar         string
}

// Loader resolves the bot token from, in order: the encrypted token file,
// the environment, and an interactive prompt
type Loader struct {
	sources   Sources
	decrypter credential.Decrypter
	prompter  credential.SecretPrompter
	getenv    func(string) string
	exists    func(string) bool
}

// LoaderOption is a functional option for configuring Loader
type LoaderOption func(*Loader)

// WithPrompter sets the prompter used as the last resort.
// A nil prompter disables prompting.
func WithPrompter(prompter credential.SecretPrompter) LoaderOption {
	return func(l *Loader) {
		l.prompter = prompter
	}
}

// WithGetenv sets the environment lookup (for testing)
func WithGetenv(getenv func(string) string) LoaderOption {
	return func(l *Loader) {
		if getenv != nil {
			l.getenv = getenv
		}
	}
}

// WithFileExists sets the file existence check (for testing)
func WithFileExists(exists func(string) bool) LoaderOption {
	return func(l *Loader) {
		if exists != nil {
			l.exists = exists
		}
	}
}

// NewLoader creates a new token Loader
func NewLoader(sources Sources, decrypter credential.Decrypter, opts ...LoaderOption) *Loader {
	l := &Loader{
		sources:   sources,
		decrypter: decrypter,
		getenv:    os.Getenv,
		exists:    fileExists,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load resolves the token. A decryption failure is returned as is and never
// falls through to the next source.
func (l *Loader) Load(ctx context.Context) (*Token, error) {
	if l.sources.PrivateKeyFile != "" && l.sources.TokenFile != "" &&
		l.exists(l.sources.PrivateKeyFile) && l.exists(l.sources.TokenFile) {
		plaintext, err := l.decrypter.Decrypt(ctx, l.sources.PrivateKeyFile, l.sources.TokenFile)
		if err != nil {
			if !errors.Is(err, credential.ErrDecrypt) {
				err = fmt.Errorf("%w: %v", credential.ErrDecrypt, err)
			}
			return nil, err
		}
		return nonEmpty(strings.TrimRight(string(plaintext), " \t\r\n"), credential.SourceEncryptedFile)
	}

	if l.sources.EnvVar != "" {
		if value := l.getenv(l.sources.EnvVar); value != "" {
			return nonEmpty(value, credential.SourceEnvironment)
		}
	}

	if l.prompter == nil {
		return nil, fmt.Errorf("%w: %w", credential.ErrNoToken, credential.ErrNoPrompt)
	}

	value, err := l.prompter.Password("Enter your bot token:")
	if err != nil {
		return nil, fmt.Errorf("token prompt failed: %w", err)
	}
	return nonEmpty(strings.TrimSpace(value), credential.SourcePrompt)
}

func nonEmpty(value string, source credential.Source) (*Token, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: %s source is empty", credential.ErrNoToken, source)
	}
	return &Token{Value: value, Source: source}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
