package cmd

import (
	"context"
	"fmt"

	apparchive "tonebot/application/archive"
	"tonebot/application/dispatch"
	"tonebot/infrastructure/config"
	"tonebot/infrastructure/drive"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <file>...",
	Short: "Upload artifacts to the configured Google Drive folder",
	Long: `Upload one or more files to the archive folder and print their
shareable links. Files already archived under the same name and size are
not uploaded again.

Requires archive.credentials_file and archive.folder_id in config.yaml.

Example:
  tonebot archive "downloads/(ST -2) Song.mp3"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	if !cfg.ArchiveEnabled() {
		return fmt.Errorf("archive is not configured; set archive.credentials_file and archive.folder_id")
	}

	client, err := drive.NewClient(cmd.Context(), config.ExpandHome(cfg.Archive.CredentialsFile))
	if err != nil {
		return fmt.Errorf("failed to create Drive client: %w", err)
	}

	return RunArchiveWithDependencies(cmd.Context(), apparchive.NewService(client, cfg.Archive.FolderID), args, DefaultOutput)
}

// RunArchiveWithDependencies runs the archive command with injected dependencies (for testing)
func RunArchiveWithDependencies(ctx context.Context, archiver dispatch.Archiver, paths []string, output OutputWriter) error {
	for _, path := range paths {
		result, err := archiver.Archive(ctx, path)
		if err != nil {
			return err
		}

		status := "Uploaded"
		if result.Existing {
			status = "Already archived"
		}
		fmt.Fprintf(output, "%s %s (%s)\n", status, result.FileName, humanize.Bytes(uint64(result.Size)))
		fmt.Fprintf(output, "  %s\n", result.ShareableURL)
	}
	return nil
}
