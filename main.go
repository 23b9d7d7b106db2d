package main

import (
	"os"

	"github.com/feishu-bots/larkbot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
