package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"manual-rag/internal/helper"
	"manual-rag/internal/tui"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start the interactive chat shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if chatSession != "" {
			cfg.History.Session = chatSession
		}
		rt, err := openRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		// the shell owns the terminal, so logs go to a file
		if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
			return err
		}
		logFile, err := os.OpenFile(filepath.Join(cfg.VectorStore.Path, "chat.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer logFile.Close()
		helper.SetupLogger(cfg.Log.Level, cfg.Log.Format, logFile)

		title := "Manual assistant · " + filepath.Base(cfg.Document.Path)
		return tui.Run(ctx, rt, rt.History, title)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", `History session to resume ("new" starts a fresh one); defaults to the most recent`)
}
