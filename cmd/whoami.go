package cmd

import (
	"context"
	"fmt"
	"os"

	"tonebot/infrastructure/telegram"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Validate the bot token and print the bot account",
	Long: `Resolve the bot token exactly as "run" does and query getMe.

Example:
  tonebot whoami`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	token, err := loadToken(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	checker := telegram.NewIdentityChecker(cfg.Telegram.APIEndpoint, nil)
	return RunWhoamiWithDependencies(cmd.Context(), checker, token, DefaultOutput)
}

// RunWhoamiWithDependencies runs the whoami command with injected dependencies (for testing)
func RunWhoamiWithDependencies(ctx context.Context, identity IdentityChecker, token string, output OutputWriter) error {
	user, err := identity.GetMe(ctx, token)
	if err != nil {
		return err
	}

	fmt.Fprintf(output, "Username: @%s\n", user.Username)
	fmt.Fprintf(output, "Name:     %s\n", user.FirstName)
	fmt.Fprintf(output, "ID:       %d\n", user.ID)

	active, reason, err := identity.ActivePoller(ctx, token)
	if err != nil {
		return err
	}
	if active {
		fmt.Fprintf(output, "Status:   polling elsewhere (%s)\n", reason)
	} else {
		fmt.Fprintln(output, "Status:   idle")
	}
	return nil
}
