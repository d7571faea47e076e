//go:build integration

package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	appcredential "tonebot/application/credential"
	"tonebot/domain/credential"

	"github.com/cucumber/godog"
)

// fakeDecrypter stands in for the age binary
type fakeDecrypter struct {
	plaintext string
	err       error
}

func (d *fakeDecrypter) Decrypt(ctx context.Context, privateKeyPath, encryptedPath string) ([]byte, error) {
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", credential.ErrDecrypt, d.err)
	}
	return []byte(d.plaintext + "\n"), nil
}

// fakeSecretPrompter answers the token prompt
type fakeSecretPrompter struct {
	answer string
}

func (p *fakeSecretPrompter) Password(message string) (string, error) {
	return p.answer, nil
}

type credentialContext struct {
	tempDir   string
	sources   appcredential.Sources
	decrypter *fakeDecrypter
	prompter  *fakeSecretPrompter
	env       map[string]string
	token     *appcredential.Token
	err       error
}

var SharedCredentialContext = &credentialContext{}

func InitializeCredentialScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedCredentialContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "credential-test-*")
		if err != nil {
			return c, err
		}
		testCtx.tempDir = tempDir
		testCtx.sources = appcredential.Sources{
			PrivateKeyFile: filepath.Join(tempDir, "key.txt"),
			TokenFile:      filepath.Join(tempDir, "token.enc"),
			EnvVar:         "TOKEN",
		}
		testCtx.decrypter = &fakeDecrypter{}
		testCtx.prompter = nil
		testCtx.env = make(map[string]string)
		testCtx.token = nil
		testCtx.err = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		SharedCredentialContext = &credentialContext{}
		return c, nil
	})

	ctx.Step(`^the private key and encrypted token files exist$`, testCtx.thePrivateKeyAndEncryptedTokenFilesExist)
	ctx.Step(`^only the encrypted token file exists$`, testCtx.onlyTheEncryptedTokenFileExists)
	ctx.Step(`^no credential files exist$`, testCtx.noCredentialFilesExist)
	ctx.Step(`^the encrypted token decrypts to "([^"]*)"$`, testCtx.theEncryptedTokenDecryptsTo)
	ctx.Step(`^decryption fails with "([^"]*)"$`, testCtx.decryptionFailsWith)
	ctx.Step(`^the environment variable TOKEN is "([^"]*)"$`, testCtx.theEnvironmentVariableTOKENIs)
	ctx.Step(`^the operator will type "([^"]*)"$`, testCtx.theOperatorWillType)
	ctx.Step(`^I load the bot token$`, testCtx.iLoadTheBotToken)
	ctx.Step(`^I attempt to load the bot token$`, testCtx.iAttemptToLoadTheBotToken)
	ctx.Step(`^the token should be "([^"]*)" from "([^"]*)"$`, testCtx.theTokenShouldBeFrom)
	ctx.Step(`^token loading should fail with a decryption error$`, testCtx.tokenLoadingShouldFailWithADecryptionError)
	ctx.Step(`^token loading should fail because no token is available$`, testCtx.tokenLoadingShouldFailBecauseNoTokenIsAvailable)
}

func (c *credentialContext) writeFile(path string) error {
	return os.WriteFile(path, []byte("placeholder"), 0600)
}

func (c *credentialContext) thePrivateKeyAndEncryptedTokenFilesExist() error {
	if err := c.writeFile(c.sources.PrivateKeyFile); err != nil {
		return err
	}
	return c.writeFile(c.sources.TokenFile)
}

func (c *credentialContext) onlyTheEncryptedTokenFileExists() error {
	return c.writeFile(c.sources.TokenFile)
}

func (c *credentialContext) noCredentialFilesExist() error {
	return nil
}

func (c *credentialContext) theEncryptedTokenDecryptsTo(token string) error {
	c.decrypter.plaintext = token
	return nil
}

func (c *credentialContext) decryptionFailsWith(message string) error {
	c.decrypter.err = errors.New(message)
	return nil
}

func (c *credentialContext) theEnvironmentVariableTOKENIs(value string) error {
	c.env["TOKEN"] = value
	return nil
}

func (c *credentialContext) theOperatorWillType(answer string) error {
	c.prompter = &fakeSecretPrompter{answer: answer}
	return nil
}

func (c *credentialContext) load() {
	opts := []appcredential.LoaderOption{
		appcredential.WithGetenv(func(key string) string { return c.env[key] }),
	}
	if c.prompter != nil {
		opts = append(opts, appcredential.WithPrompter(c.prompter))
	}
	c.token, c.err = appcredential.NewLoader(c.sources, c.decrypter, opts...).Load(context.Background())
}

func (c *credentialContext) iLoadTheBotToken() error {
	c.load()
	if c.err != nil {
		return fmt.Errorf("failed to load token: %w", c.err)
	}
	return nil
}

func (c *credentialContext) iAttemptToLoadTheBotToken() error {
	c.load()
	return nil
}

func (c *credentialContext) theTokenShouldBeFrom(expected, source string) error {
	if c.token.Value != expected {
		return fmt.Errorf("expected token %q, got %q", expected, c.token.Value)
	}
	if string(c.token.Source) != source {
		return fmt.Errorf("expected source %q, got %q", source, c.token.Source)
	}
	return nil
}

func (c *credentialContext) tokenLoadingShouldFailWithADecryptionError() error {
	if !errors.Is(c.err, credential.ErrDecrypt) {
		return fmt.Errorf("expected decryption error, got %v", c.err)
	}
	return nil
}

func (c *credentialContext) tokenLoadingShouldFailBecauseNoTokenIsAvailable() error {
	if !errors.Is(c.err, credential.ErrNoToken) {
		return fmt.Errorf("expected no-token error, got %v", c.err)
	}
	return nil
}
