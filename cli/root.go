package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"atlas/rag/parser"
	"atlas/rag/providers"
	"atlas/rag/retriever"
	"atlas/rag/vector"
)

var (
	dataDir    string
	collection string
	backend    string

	knowledge *retriever.Retriever
)

var rootCmd = &cobra.Command{
	Use:   "atlas",
	Short: "Local knowledge base with semantic search",
	Long: `Atlas ingests text, Markdown, HTML, DOCX, and PDF files into a
vector collection and answers similarity queries against it.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupRetriever,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if knowledge != nil {
			return knowledge.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", getEnv("ATLAS_DATA_DIR", "data"), "directory holding the vector database")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "collection name (defaults to VECTOR_COLLECTION)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", getEnv("VECTOR_BACKEND", "sqlite"), "vector store backend: sqlite or redis")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupRetriever wires the pipeline once per invocation.
func setupRetriever(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	embedder, err := providers.CreateEmbeddingModel(ctx)
	if err != nil {
		return fmt.Errorf("creating embedding model: %w", err)
	}

	chunker, err := vector.NewChunker(vector.DefaultChunkConfig())
	if err != nil {
		return err
	}

	storeConfig := vector.DefaultStoreConfig()
	if collection != "" {
		storeConfig.Collection = collection
	}

	var store vector.Store
	switch backend {
	case "redis":
		store, err = vector.NewRedisStore(ctx, vector.DefaultRedisConfig(), storeConfig)
	case "sqlite":
		store, err = vector.NewSQLiteStore(dataDir, storeConfig)
	default:
		return fmt.Errorf("unknown backend %q (want sqlite or redis)", backend)
	}
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}

	knowledge, err = retriever.New(retriever.Config{
		Registry: parser.DefaultRegistry(),
		Chunker:  chunker,
		Embedder: vector.NewEmbeddingClient(embedder, vector.DefaultEmbeddingConfig()),
		Store:    store,
	})
	if err != nil {
		store.Close()
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
