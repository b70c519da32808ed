package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"parlor/adapters/wiki"
	"parlor/config"
	"parlor/domain"
	"parlor/usecase"
)

func newChatCmd() *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat from the terminal without running a server",
		Long:  "Chat runs a single local session against the configured provider.\nCommands inside the session: /mode <chat|code|knowledge>, /reset,\n/history. Type exit or quit to leave.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(modeFlag)
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "chat", "initial mode: chat|code|knowledge")
	return cmd
}

func runChat(modeLabel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	llmClient := buildCompletionClient(ctx, cfg)

	var summarizer domain.Summarizer
	if cfg.Wiki.Enabled {
		summarizer = wiki.NewClient(cfg.Wiki.BaseURL, cfg.WikiTimeout())
	}

	engine := usecase.NewEngine(usecase.EngineConfig{
		HistoryCapacity: cfg.Chat.HistoryCapacity,
		WikiSentences:   cfg.Wiki.Sentences,
		Prompts:         modePrompts(cfg.Chat.Prompts),
	}, llmClient, summarizer)

	currentMode := modeLabel
	fmt.Printf("parlor %s, mode %s. /mode, /reset, /history; exit to quit.\n",
		version, domain.ResolveMode(currentMode))

	scanner := bufio.NewScanner(os.Stdin)
	for ctx.Err() == nil {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case line == "":
			continue
		case lower == "exit", lower == "quit":
			fmt.Println("Goodbye!")
			return nil
		case line == "/reset":
			engine.Reset()
			fmt.Println("history cleared")
			continue
		case line == "/history":
			for _, msg := range engine.History() {
				fmt.Printf("%s: %s\n", msg.Role, msg.Content)
			}
			continue
		case strings.HasPrefix(line, "/mode"):
			currentMode = strings.TrimSpace(strings.TrimPrefix(line, "/mode"))
			fmt.Printf("mode set to %s\n", domain.ResolveMode(currentMode))
			continue
		}

		reply := engine.Respond(ctx, line, currentMode)
		fmt.Printf("Bot: %s\n", reply.Text)
	}

	return scanner.Err()
}
