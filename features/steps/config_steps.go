//go:build integration

package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tonebot/infrastructure/config"

	"github.com/cucumber/godog"
)

type configContext struct {
	tempDir    string
	configPath string
	env        map[string]string
	cfg        *config.Config
	loadErr    error
}

// SharedConfigContext is reset before each scenario via After hook
var SharedConfigContext = &configContext{}

func InitializeConfigScenario(ctx *godog.ScenarioContext) {
	testCtx := SharedConfigContext

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		tempDir, err := os.MkdirTemp("", "config-test-*")
		if err != nil {
			return c, err
		}
		testCtx.tempDir = tempDir
		testCtx.configPath = filepath.Join(tempDir, "config.yaml")
		testCtx.env = make(map[string]string)
		testCtx.cfg = nil
		testCtx.loadErr = nil
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if testCtx.tempDir != "" {
			os.RemoveAll(testCtx.tempDir)
		}
		SharedConfigContext = &configContext{}
		return c, nil
	})

	ctx.Step(`^no configuration file exists$`, testCtx.noConfigurationFileExists)
	ctx.Step(`^a configuration file containing:$`, testCtx.aConfigurationFileContaining)
	ctx.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)
	ctx.Step(`^I load the configuration$`, testCtx.iLoadTheConfiguration)
	ctx.Step(`^I attempt to load the configuration$`, testCtx.iAttemptToLoadTheConfiguration)
	ctx.Step(`^the downloads directory should be "([^"]*)"$`, testCtx.theDownloadsDirectoryShouldBe)
	ctx.Step(`^the token environment variable should be "([^"]*)"$`, testCtx.theTokenEnvironmentVariableShouldBe)
	ctx.Step(`^the bitrate should be "([^"]*)"$`, testCtx.theBitrateShouldBe)
	ctx.Step(`^lenient input should be enabled$`, testCtx.lenientInputShouldBeEnabled)
	ctx.Step(`^I should receive a configuration error$`, testCtx.iShouldReceiveAConfigurationError)
}

func (c *configContext) noConfigurationFileExists() error {
	if _, err := os.Stat(c.configPath); err == nil {
		return fmt.Errorf("config file unexpectedly exists at %s", c.configPath)
	}
	return nil
}

func (c *configContext) aConfigurationFileContaining(doc *godog.DocString) error {
	return os.WriteFile(c.configPath, []byte(doc.Content), 0644)
}

func (c *configContext) theEnvironmentVariableIs(key, value string) error {
	c.env[key] = value
	return nil
}

func (c *configContext) load() {
	c.cfg, c.loadErr = config.LoadOrDefault(c.configPath)
	if c.loadErr == nil {
		c.cfg.ApplyEnv(func(key string) string { return c.env[key] })
	}
}

func (c *configContext) iLoadTheConfiguration() error {
	c.load()
	if c.loadErr != nil {
		return fmt.Errorf("failed to load config: %w", c.loadErr)
	}
	return nil
}

func (c *configContext) iAttemptToLoadTheConfiguration() error {
	c.load()
	return nil
}

func (c *configContext) theDownloadsDirectoryShouldBe(expected string) error {
	if c.cfg.Paths.DownloadsDirectory != expected {
		return fmt.Errorf("expected downloads directory %q, got %q", expected, c.cfg.Paths.DownloadsDirectory)
	}
	return nil
}

func (c *configContext) theTokenEnvironmentVariableShouldBe(expected string) error {
	if c.cfg.Credentials.TokenEnv != expected {
		return fmt.Errorf("expected token env %q, got %q", expected, c.cfg.Credentials.TokenEnv)
	}
	return nil
}

func (c *configContext) theBitrateShouldBe(expected string) error {
	if c.cfg.Audio.Bitrate != expected {
		return fmt.Errorf("expected bitrate %q, got %q", expected, c.cfg.Audio.Bitrate)
	}
	return nil
}

func (c *configContext) lenientInputShouldBeEnabled() error {
	if !c.cfg.Input.Lenient {
		return fmt.Errorf("expected lenient input to be enabled")
	}
	return nil
}

func (c *configContext) iShouldReceiveAConfigurationError() error {
	if c.loadErr == nil {
		return fmt.Errorf("expected an error loading the configuration")
	}
	return nil
}
