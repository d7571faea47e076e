package age

import (
	"context"
	"fmt"

	"tonebot/domain/credential"
	"tonebot/infrastructure/command"
)

// Decrypter implements credential.Decrypter by running the age CLI
type Decrypter struct {
	agePath string
	runner  command.Runner
}

// DecrypterOption is a functional option for configuring Decrypter
type DecrypterOption func(*Decrypter)

// WithAgePath sets a custom age executable path
func WithAgePath(path string) DecrypterOption {
	return func(d *Decrypter) {
		if path != "" {
			d.agePath = path
		}
	}
}

// WithCommandRunner sets a custom command runner (for testing)
func WithCommandRunner(runner command.Runner) DecrypterOption {
	return func(d *Decrypter) {
		d.runner = runner
	}
}

// NewDecrypter creates a new age-based decrypter
func NewDecrypter(opts ...DecrypterOption) *Decrypter {
	d := &Decrypter{
		agePath: "age",
		runner:  &command.ExecRunner{},
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Decrypt implements credential.Decrypter
func (d *Decrypter) Decrypt(ctx context.Context, privateKeyPath, encryptedPath string) ([]byte, error) {
	out, err := d.runner.Output(ctx, d.agePath, "-d", "-i", privateKeyPath, encryptedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrDecrypt, err)
	}
	return out, nil
}

// Ensure Decrypter implements credential.Decrypter
var _ credential.Decrypter = (*Decrypter)(nil)
