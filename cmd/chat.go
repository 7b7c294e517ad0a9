package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/connecteur-digital/chatwidget/internal/agent/conversation"
	"github.com/connecteur-digital/chatwidget/internal/tui"
	logx "github.com/connecteur-digital/chatwidget/pkg/logger"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant in the terminal",
	Long: `Open the chat widget in the terminal. Logs go to LOG_FILE when set
and are discarded otherwise. Pass --resume with a conversation id to continue
a transcript kept in the configured store.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := appCfg
		closeLog, err := initLogging(cfg, nil)
		if err != nil {
			return err
		}
		defer closeLog()

		ctx := cmd.Context()
		st, err := buildStack(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.close()

		manager := st.manager(cfg)
		defer manager.Shutdown()

		var conv *conversation.Conversation
		if id, _ := cmd.Flags().GetString("resume"); id != "" {
			conv, err = manager.Get(ctx, id)
		} else {
			conv, err = manager.Create(ctx)
		}
		if err != nil {
			return err
		}

		events, unsubscribe := manager.Hub().Subscribe(conv.ID(), 64)
		defer unsubscribe()

		p := tea.NewProgram(tui.New(conv, events), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil {
			logx.Error().Err(err).Msg("terminal widget stopped")
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "conversation %s\n", conv.ID())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("resume", "", "id of a stored conversation to continue")
}
