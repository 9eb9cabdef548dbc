package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var restoreFile string

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the vector store with a backup written by reset --backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		m, err := rt.Restore(cmd.Context(), restoreFile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %d records of %s into %s\n", m.Records, m.Source, cfg.VectorStore.Path)
		return nil
	},
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreFile, "file", "f", "", "Backup file written by reset --backup")
	restoreCmd.MarkFlagRequired("file")
}
