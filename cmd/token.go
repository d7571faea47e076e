package cmd

import (
	"context"
	"log/slog"
	"os"

	appcredential "tonebot/application/credential"
	"tonebot/domain/credential"
	"tonebot/infrastructure/age"
	"tonebot/infrastructure/config"

	"github.com/mattn/go-isatty"
)

// loadToken resolves the bot token using the configured sources. The prompt
// is only offered when stdin is a terminal.
func loadToken(ctx context.Context, cfg *config.Config, logger *slog.Logger) (string, error) {
	sources := appcredential.Sources{
		PrivateKeyFile: config.ExpandHome(cfg.Credentials.PrivateKeyFile),
		TokenFile:      config.ExpandHome(cfg.Credentials.TokenFile),
		EnvVar:         cfg.Credentials.TokenEnv,
	}
	decrypter := age.NewDecrypter(age.WithAgePath(cfg.Tools.Age))

	var prompter credential.SecretPrompter
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		prompter = DefaultPrompter
	}

	token, err := appcredential.NewLoader(sources, decrypter, appcredential.WithPrompter(prompter)).Load(ctx)
	if err != nil {
		return "", err
	}
	logger.Info("bot token loaded", slog.String("source", string(token.Source)))
	return token.Value, nil
}
