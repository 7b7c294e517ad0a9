package cmd

import (
	"github.com/spf13/cobra"
)

var (
	envFile  string
	logLevel string
	appCfg   AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "chatwidget",
	Short: "Conversational assistant of the Connecteur Digital website",
	Long: `chatwidget runs the rule-based assistant of the agency website.
It answers visitor questions about pricing, capabilities and SEO,
suggests navigation shortcuts and collects leads through a quick form.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(envFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		appCfg = cfg
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides LOG_LEVEL")
}
