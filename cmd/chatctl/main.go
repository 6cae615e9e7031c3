package main

import (
	"os"

	"github.com/aifix/chat-auth/cmd/chatctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
