package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/connecteur-digital/chatwidget/internal/agent/graph"
	"github.com/connecteur-digital/chatwidget/internal/agent/rules"
	errx "github.com/connecteur-digital/chatwidget/internal/core/error"
)

var classifyCmd = &cobra.Command{
	Use:          "classify [utterance...]",
	Short:        "Print the intent and reply chosen for an utterance",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		utterance := strings.Join(args, " ")
		if strings.TrimSpace(utterance) == "" {
			return errx.ErrBlankUtterance
		}

		closeLog, err := initLogging(appCfg, nil)
		if err != nil {
			return err
		}
		defer closeLog()

		script, err := rules.LoadFile(appCfg.Conversation.ScriptFile)
		if err != nil {
			return err
		}
		runner, err := graph.BuildReplyGraph(cmd.Context(), graph.Config{Script: script})
		if err != nil {
			return err
		}

		draft, err := runner.Reply(cmd.Context(), utterance)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "intent: %s\n", draft.Intent)
		fmt.Fprintf(out, "reply:  %s\n", draft.Text)
		for i, a := range draft.Actions {
			fmt.Fprintf(out, "  [%d] %s (%s %s)\n", i+1, a.Label, a.Kind, a.Target)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
