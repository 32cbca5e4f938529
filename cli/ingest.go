package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var ingestPattern string

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest files or directories into the knowledge base",
	Long: `Parses, chunks, and embeds the given files. Directories are
walked recursively; unsupported files are skipped. Re-ingesting a file
replaces its previous chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPattern, "pattern", "", "glob pattern applied inside directories (e.g. \"**/*.md\")")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var failed int
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		if info.IsDir() {
			report, err := knowledge.IngestDirectory(ctx, path, ingestPattern)
			if err != nil {
				return err
			}
			for file, n := range report.Succeeded {
				cmd.Printf("  ok    %s (%d chunks)\n", file, n)
			}
			for _, fe := range report.Failed {
				cmd.Printf("  fail  %s: %v\n", fe.Path, fe.Err)
				failed++
			}
			cmd.Printf("%s: %d files, %d chunks\n", path, len(report.Succeeded), report.TotalChunks)
			continue
		}

		n, err := knowledge.IngestFile(ctx, path)
		if err != nil {
			cmd.Printf("  fail  %s: %v\n", path, err)
			failed++
			continue
		}
		cmd.Printf("  ok    %s (%d chunks)\n", path, n)
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to ingest", failed)
	}
	return nil
}
