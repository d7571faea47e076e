package cmd

import (
	"fmt"

	"tonebot/infrastructure/config"
	"tonebot/infrastructure/filesystem"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "List downloaded and pitch-shifted files",
	Long: `List every artifact in the downloads directory with its offset tag,
size and age.

Example:
  tonebot cache`,
	Args: cobra.NoArgs,
	RunE: runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
}

func runCache(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	return RunCacheWithDependencies(filesystem.NewChecker(), config.ExpandHome(cfg.Paths.DownloadsDirectory), DefaultOutput)
}

// ArtifactLister lists the artifacts of a directory
type ArtifactLister interface {
	List(dir string) ([]filesystem.Entry, error)
}

// RunCacheWithDependencies runs the cache command with injected dependencies (for testing)
func RunCacheWithDependencies(lister ArtifactLister, dir string, output OutputWriter) error {
	entries, err := lister.List(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	if len(entries) == 0 {
		fmt.Fprintf(output, "No files in %s\n", dir)
		return nil
	}

	var total int64
	t := table.NewWriter()
	t.SetOutputMirror(output)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"File", "Offset", "Size", "Modified"})
	for _, e := range entries {
		offset := e.Semitones
		if offset == "" {
			offset = "original"
		}
		t.AppendRow(table.Row{e.Name, offset, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime)})
		total += e.Size
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d files", len(entries)), "", humanize.Bytes(uint64(total)), ""})
	t.Render()
	return nil
}
