//go:build integration

package steps

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tonebot/cmd"
	"tonebot/infrastructure/config"

	"github.com/cucumber/godog"
)

// scriptedOperator answers setup prompts by keyword. Each answer is keyed by a
// phrase that must appear in the prompt text; a blank answer accepts the
// prompt's default. Prompts without a scripted answer fail the scenario so a
// reworded or reordered wizard is caught.
type scriptedOperator struct {
	answers map[string]string
	asked   []string
}

func (o *scriptedOperator) answer(message string) (string, bool) {
	o.asked = append(o.asked, message)
	lower := strings.ToLower(message)
	for keyword, value := range o.answers {
		if strings.Contains(lower, keyword) {
			return value, true
		}
	}
	return "", false
}

func (o *scriptedOperator) Input(message string, defaultValue string) (string, error) {
	value, ok := o.answer(message)
	if !ok {
		return "", fmt.Errorf("no scripted answer for %q", message)
	}
	if value == "" {
		return defaultValue, nil
	}
	return value, nil
}

func (o *scriptedOperator) Confirm(message string, defaultValue bool) (bool, error) {
	value, ok := o.answer(message)
	if !ok {
		return false, fmt.Errorf("no scripted answer for %q", message)
	}
	switch strings.ToLower(value) {
	case "":
		return defaultValue, nil
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("answer %q to %q is not yes or no", value, message)
}

func (o *scriptedOperator) Password(message string) (string, error) {
	return "", fmt.Errorf("setup does not ask for secrets, got %q", message)
}

func (o *scriptedOperator) wasAsked(keyword string) bool {
	for _, message := range o.asked {
		if strings.Contains(strings.ToLower(message), keyword) {
			return true
		}
	}
	return false
}

type setupWizard struct {
	dir      string
	path     string
	previous []byte
	operator *scriptedOperator
	output   bytes.Buffer
}

// InitializeSetupScenario registers the steps driving "tonebot setup"
func InitializeSetupScenario(ctx *godog.ScenarioContext) {
	w := &setupWizard{}

	ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "tonebot-setup-*")
		if err != nil {
			return c, err
		}
		w.dir = dir
		w.path = filepath.Join(dir, "config", "config.yaml")
		w.operator = &scriptedOperator{answers: make(map[string]string)}
		return c, nil
	})

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if w.dir != "" {
			os.RemoveAll(w.dir)
		}
		return c, nil
	})

	ctx.Step(`^tonebot has never been configured$`, w.neverConfigured)
	ctx.Step(`^tonebot is already configured to save audio in "([^"]*)"$`, w.alreadyConfigured)
	ctx.Step(`^the operator answers:$`, w.operatorAnswers)
	ctx.Step(`^the operator answers "([^"]*)" when asked about "([^"]*)"$`, w.operatorAnswersOne)
	ctx.Step(`^the operator runs tonebot setup$`, w.runSetup)
	ctx.Step(`^the saved configuration has:$`, w.savedConfigurationHas)
	ctx.Step(`^the operator was never asked about "([^"]*)"$`, w.neverAsked)
	ctx.Step(`^setup reports "([^"]*)"$`, w.setupReports)
	ctx.Step(`^the previous configuration is kept$`, w.previousKept)
}

func (w *setupWizard) neverConfigured() error {
	return os.MkdirAll(filepath.Dir(w.path), 0755)
}

func (w *setupWizard) alreadyConfigured(downloads string) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.Paths.DownloadsDirectory = downloads
	cfg.Audio.Bitrate = "192k"
	if err := config.Save(cfg, w.path); err != nil {
		return err
	}

	previous, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	w.previous = previous
	return nil
}

func (w *setupWizard) operatorAnswers(table *godog.Table) error {
	for _, row := range table.Rows[1:] {
		w.operator.answers[strings.ToLower(row.Cells[0].Value)] = row.Cells[1].Value
	}
	return nil
}

func (w *setupWizard) operatorAnswersOne(value, keyword string) error {
	w.operator.answers[strings.ToLower(keyword)] = value
	return nil
}

func (w *setupWizard) runSetup() error {
	if err := cmd.RunSetupWithPrompter(w.operator, w.path, &w.output); err != nil {
		return fmt.Errorf("setup failed: %w (asked %q)", err, w.operator.asked)
	}
	return nil
}

// savedConfigurationHas compares yaml keys of the written file against a
// | key | value | table
func (w *setupWizard) savedConfigurationHas(table *godog.Table) error {
	cfg, err := config.Load(w.path)
	if err != nil {
		return fmt.Errorf("failed to load saved configuration: %w", err)
	}

	fields := map[string]string{
		"paths.downloads_directory": cfg.Paths.DownloadsDirectory,
		"credentials.token_file":    cfg.Credentials.TokenFile,
		"credentials.private_key":   cfg.Credentials.PrivateKeyFile,
		"credentials.token_env":     cfg.Credentials.TokenEnv,
		"audio.bitrate":             cfg.Audio.Bitrate,
		"input.lenient":             strconv.FormatBool(cfg.Input.Lenient),
		"metrics.listen_address":    cfg.Metrics.ListenAddress,
		"archive.credentials_file":  cfg.Archive.CredentialsFile,
		"archive.folder_id":         cfg.Archive.FolderID,
	}

	for _, row := range table.Rows[1:] {
		key, want := row.Cells[0].Value, row.Cells[1].Value
		got, ok := fields[key]
		if !ok {
			return fmt.Errorf("unknown configuration key %q", key)
		}
		if got != want {
			return fmt.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	return nil
}

func (w *setupWizard) neverAsked(keyword string) error {
	if w.operator.wasAsked(strings.ToLower(keyword)) {
		return fmt.Errorf("operator was asked about %q: %q", keyword, w.operator.asked)
	}
	return nil
}

func (w *setupWizard) setupReports(text string) error {
	if !strings.Contains(w.output.String(), text) {
		return fmt.Errorf("setup output %q does not contain %q", w.output.String(), text)
	}
	return nil
}

func (w *setupWizard) previousKept() error {
	current, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %w", err)
	}
	if !bytes.Equal(current, w.previous) {
		return fmt.Errorf("configuration was rewritten")
	}
	return nil
}
