package cmd

import (
	"github.com/spf13/cobra"

	"github.com/feishu-bots/larkbot/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize larkbot configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure the bridge and generates a .larkbot.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
