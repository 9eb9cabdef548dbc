package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"manual-rag/internal/helper"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the vector store manifest and record count",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		status, err := rt.Status(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if statusJSON {
			helper.PrettyPrint(w, status)
			return nil
		}

		fmt.Fprintf(w, "Backend:   %s\n", status.Backend)
		fmt.Fprintf(w, "Path:      %s\n", status.Path)
		fmt.Fprintf(w, "Records:   %d\n", status.Records)
		if !status.Built {
			fmt.Fprintln(w, "Built:     no (run ingest)")
			return nil
		}
		m := status.Manifest
		fmt.Fprintf(w, "Built:     %s\n", m.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "Source:    %s (%d pages)\n", m.Source, m.Pages)
		fmt.Fprintf(w, "Embedding: %s (%d dims)\n", m.EmbeddingModel, m.Dimensions)
		fmt.Fprintf(w, "Chunking:  size %d, overlap %d, span pages %t\n", m.ChunkSize, m.ChunkOverlap, m.SpanPages)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
}
