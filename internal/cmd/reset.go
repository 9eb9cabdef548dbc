package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	resetYes    bool
	resetBackup string
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every record and the manifest of the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return errors.New("refusing to reset without --yes")
		}
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.Reset(cmd.Context(), resetBackup); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Vector store at %s reset\n", cfg.VectorStore.Path)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "Confirm the reset")
	resetCmd.Flags().StringVar(&resetBackup, "backup", "", "Export the collection to this file first (chromem only, encrypted with rag.encryption_key)")
}
