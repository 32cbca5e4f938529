package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"atlas/rag"
	"atlas/rag/retriever"
)

var (
	searchTopK      int
	searchThreshold float32
	searchJSON      bool
	searchContext   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Embeds the query and returns the closest stored chunks, ordered
by similarity. Results below the threshold are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "n", retriever.DefaultTopK, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchThreshold, "threshold", retriever.DefaultThreshold, "minimum similarity (0 disables filtering)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print one assembled context string instead of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]

	opts := []retriever.SearchOption{
		retriever.WithTopK(searchTopK),
		retriever.WithThreshold(searchThreshold),
	}

	if searchContext {
		text, err := knowledge.SearchContext(ctx, query, opts...)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		cmd.Println(text)
		return nil
	}

	results, err := knowledge.Search(ctx, query, opts...)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	for i, res := range results {
		cmd.Printf("  [%d] %s (similarity %.2f)\n", i+1, res.ID, res.Similarity)
		if source := res.Metadata[rag.MetadataSourceKey]; source != "" {
			cmd.Printf("      Source: %s\n", source)
		}
		cmd.Printf("      %s\n\n", snippet(res.Content, 200))
	}
	return nil
}

func snippet(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
