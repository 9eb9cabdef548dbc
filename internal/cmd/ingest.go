package cmd

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"manual-rag/internal/helper"
	"manual-rag/internal/vectorstore"
)

var (
	ingestFile   string
	ingestDryRun bool
	ingestForce  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the vector store from the manual",
	Long:  "Load the document, split it into chunks, embed them and store the vectors. An existing store is kept unless --force is given.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path := ingestFile
		if path == "" {
			path = cfg.Document.Path
		}

		rt, err := openRuntime(ctx, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if ingestDryRun {
			report, err := rt.Preview(ctx, path)
			if err != nil {
				return err
			}
			log.Info().Int("pages", report.Pages).Int("chunks", report.Chunks).Msg("Dry run, nothing stored")
			helper.PrettyPrint(cmd.OutOrStdout(), report.Preview)
			return nil
		}

		if vectorstore.ManifestExists(cfg.VectorStore.Path) && !ingestForce {
			log.Info().Str("path", cfg.VectorStore.Path).Msg("Vector store already built, use --force to rebuild")
			return nil
		}

		report, err := rt.Ingest(ctx, path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ingested %s: %d pages, %d chunks, %d records in %s\n",
			report.Source, report.Pages, report.Chunks, report.Records, report.Duration.Round(time.Millisecond))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "", "Document to ingest (defaults to document.path)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "Load and chunk only, print the chunks")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "Rebuild the store even if it exists")
}
