package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

const version = "0.1.0"

var configPath string

func main() {
	gotenv.Load()

	root := &cobra.Command{
		Use:     "parlor",
		Short:   "Parlor is a multi-mode chatbot service",
		Long:    "Parlor runs a small chatbot core with chat, code and knowledge modes,\nbounded per-session memory, optional Wikipedia enrichment and a local\nfallback when no model is reachable.\n\nUse 'serve' for the HTTP/WebSocket API or 'chat' for a terminal session.",
		Version: version,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "parlor.yaml", "path to the YAML config file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
