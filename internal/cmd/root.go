package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"manual-rag/internal/app"
	"manual-rag/internal/config"
	"manual-rag/internal/helper"
)

var (
	// Version is set at build time.
	Version = "dev"

	configPath string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "manual-rag",
	Short:         "Question answering over an industrial product manual",
	Long:          "Ingest a PDF manual into a vector store and ask questions about it; answers cite the manual pages they come from.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		helper.SetupLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
		log.Debug().Str("config", configPath).Msg("Loaded config")
		return nil
	},
}

// ExecuteContext runs the command line. Without a subcommand the chat shell starts.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides the config")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(restoreCmd)

	rootCmd.RunE = chatCmd.RunE
	rootCmd.SetVersionTemplate(fmt.Sprintf("manual-rag version %s\n", Version))
}

// openRuntime builds the runtime for a command and, unless indexOnly is set,
// makes sure the vector store exists.
func openRuntime(ctx context.Context, indexOnly bool) (*app.Runtime, error) {
	var opts []app.Option
	if indexOnly {
		opts = append(opts, app.IndexOnly())
	}
	rt, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if indexOnly {
		return rt, nil
	}
	if err := rt.Bootstrap(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}
