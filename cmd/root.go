package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "larkbot",
	Short: "Feishu webhook bridge to a generative-language backend",
	Long: `larkbot receives Feishu (Lark) message events over a webhook, forwards
the message text to a generative-language backend and posts the generated
reply back into the originating conversation. Repeat deliveries of the
same event are deduplicated by message id.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".larkbot.yml", "config file path")
}
