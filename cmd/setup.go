package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"tonebot/infrastructure/config"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"
)

// Prompter interface for interactive prompts (allows mocking in tests)
type Prompter interface {
	Input(message string, defaultValue string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
	Password(message string) (string, error)
}

// SurveyPrompter implements Prompter using the survey library
type SurveyPrompter struct{}

func (p *SurveyPrompter) Input(message string, defaultValue string) (string, error) {
	result := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

// Password reads a secret without echoing it
func (p *SurveyPrompter) Password(message string) (string, error) {
	result := ""
	prompt := &survey.Password{
		Message: message,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return "", err
	}
	return result, nil
}

// DefaultPrompter is the prompter used in production
var DefaultPrompter Prompter = &SurveyPrompter{}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create configuration file interactively",
	Long: `Prompts for configuration values and creates config.yaml.

This command guides you through setting up the downloads directory,
token location, audio quality, input handling, metrics and the optional
Google Drive archive.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	return RunSetupWithPrompter(DefaultPrompter, cfgFile, DefaultOutput)
}

// RunSetupWithPrompter runs the setup with a given prompter (for testing)
func RunSetupWithPrompter(prompter Prompter, configPath string, output OutputWriter) error {
	if configPath == "" {
		configPath = config.DefaultConfigPath
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		overwrite, err := prompter.Confirm("config.yaml already exists. Overwrite?", false)
		if err != nil {
			return fmt.Errorf("prompt cancelled")
		}
		if !overwrite {
			fmt.Fprintln(output, "Setup cancelled.")
			return nil
		}
	}

	fmt.Fprintln(output, "Welcome to tonebot setup!")
	fmt.Fprintln(output)

	cfg := config.Default()

	if err := promptPaths(prompter, cfg); err != nil {
		return err
	}

	if err := promptCredentials(prompter, cfg); err != nil {
		return err
	}

	if err := promptAudio(prompter, cfg); err != nil {
		return err
	}

	if err := promptBehaviour(prompter, cfg); err != nil {
		return err
	}

	if err := promptArchive(prompter, cfg); err != nil {
		return err
	}

	// Ensure config directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(output)
	fmt.Fprintf(output, "Configuration saved to %s\n", configPath)
	return nil
}

func promptPaths(prompter Prompter, cfg *config.Config) error {
	downloads, err := prompter.Input("Where should downloaded audio go?", cfg.Paths.DownloadsDirectory)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if downloads == "" {
		return fmt.Errorf("downloads directory is required")
	}
	cfg.Paths.DownloadsDirectory = downloads
	return nil
}

func promptCredentials(prompter Prompter, cfg *config.Config) error {
	tokenFile, err := prompter.Input("Path to the age-encrypted token file?", cfg.Credentials.TokenFile)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if tokenFile != "" {
		cfg.Credentials.TokenFile = tokenFile
	}

	keyFile, err := prompter.Input("Path to the age private key?", cfg.Credentials.PrivateKeyFile)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if keyFile != "" {
		cfg.Credentials.PrivateKeyFile = keyFile
	}

	envVar, err := prompter.Input("Environment variable to read the token from?", cfg.Credentials.TokenEnv)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if envVar != "" {
		cfg.Credentials.TokenEnv = envVar
	}
	return nil
}

func promptAudio(prompter Prompter, cfg *config.Config) error {
	bitrate, err := prompter.Input("Audio bitrate for mp3 output?", config.DefaultBitrate)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if bitrate == "" {
		bitrate = config.DefaultBitrate
	}
	cfg.Audio.Bitrate = bitrate
	return nil
}

func promptBehaviour(prompter Prompter, cfg *config.Config) error {
	lenient, err := prompter.Confirm("Process messages with extra words (after reporting the format error)?", false)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Input.Lenient = lenient

	metricsAddr, err := prompter.Input("Prometheus metrics address (empty to disable)?", "")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	cfg.Metrics.ListenAddress = metricsAddr
	return nil
}

func promptArchive(prompter Prompter, cfg *config.Config) error {
	enable, err := prompter.Confirm("Archive produced files to Google Drive?", false)
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if !enable {
		return nil
	}

	credentials, err := prompter.Input("Path to Google service account credentials?", "credentials.json")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if credentials == "" {
		credentials = "credentials.json"
	}
	cfg.Archive.CredentialsFile = credentials

	folder, err := prompter.Input("Google Drive folder ID for archived audio?", "")
	if err != nil {
		return fmt.Errorf("prompt cancelled")
	}
	if folder == "" {
		return fmt.Errorf("folder ID is required")
	}
	cfg.Archive.FolderID = folder
	return nil
}
