package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var listLimit, listOffset int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := knowledge.Stats(context.Background())
		if err != nil {
			return err
		}
		cmd.Printf("Collection:    %s\n", stats.Collection)
		cmd.Printf("Entries:       %d\n", stats.Entries)
		cmd.Printf("Chunk size:    %d\n", stats.ChunkSize)
		cmd.Printf("Chunk overlap: %d\n", stats.ChunkOverlap)
		cmd.Printf("Dimension:     %d\n", stats.Dimension)
		return nil
	},
}

var (
	deleteYes bool
	clearYes  bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete [source]",
	Short: "Delete every chunk ingested from a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteYes {
			cmd.Printf("This removes every chunk ingested from %s. Re-run with --yes to confirm.\n", args[0])
			return nil
		}
		if err := knowledge.DeleteSource(context.Background(), args[0]); err != nil {
			return err
		}
		cmd.Printf("Deleted entries from %s\n", args[0])
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry in the collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			cmd.Println("This removes every entry in the collection. Re-run with --yes to confirm.")
			return nil
		}
		ctx := context.Background()
		count, err := knowledge.Count(ctx)
		if err != nil {
			return err
		}
		if err := knowledge.Clear(ctx); err != nil {
			return err
		}
		cmd.Printf("Cleared %d entries\n", count)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored chunks",
	RunE:  runList,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "confirm the deletion")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm clearing the collection")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum entries to show")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "entries to skip")
	rootCmd.AddCommand(statsCmd, deleteCmd, clearCmd, listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := knowledge.List(context.Background(), listLimit, listOffset)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("Collection is empty.")
		return nil
	}
	for _, e := range entries {
		source := e.Metadata["source"]
		cmd.Printf("  %s  %-40s %s\n", e.ID, source, snippet(e.Text, 60))
	}
	cmd.Println()
	cmd.Printf("%d entries shown\n", len(entries))
	return nil
}
