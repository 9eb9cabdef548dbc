package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"manual-rag/internal/models"
	"manual-rag/internal/tui"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		question := strings.Join(args, " ")
		answer, err := rt.Ask(ctx, question)
		if err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), answer)
		return nil
	},
}

func printAnswer(w io.Writer, answer *models.Answer) {
	fmt.Fprintf(w, "Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n\n", answer.Question)
	fmt.Fprintf(w, "Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n\n", answer.Content)
	fmt.Fprintf(w, "Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>\n%s\n", tui.RenderSources(answer.Sources))
}
