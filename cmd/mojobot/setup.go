package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mojobot/internal/stream"

	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Register the agent user on the chat platform",
		Long:  "Upserts the agent's user record (admin role, display name, assistant profile). Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := buildApp(cfg)
			if !a.chat.Configured() {
				return fmt.Errorf("setup: set STREAM_API_KEY and STREAM_API_SECRET first")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			user := stream.User{
				ID:   cfg.Agent.ID,
				Role: "admin",
				Name: cfg.Agent.Name,
				Custom: map[string]any{
					"type":        "ai-assistant",
					"description": cfg.Agent.Description,
				},
			}
			if err := a.chat.UpsertUsers(ctx, user); err != nil {
				return fmt.Errorf("setup: %w", err)
			}
			logger.Info("agent user registered", "id", user.ID, "name", user.Name)
			return nil
		},
	}
}

func askCmd() *cobra.Command {
	var asker string
	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Run a message through the pipeline without posting anything",
		Long: `Treats the message as if it had been posted in a channel: trigger matching,
web search and generation run as usual, and the reply is printed instead of sent.`,
		Example: `  mojobot ask "@mojo who won the 2026 world cup?" --as Ana`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a := buildApp(cfg)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := a.orchestrator.Preview(ctx, strings.Join(args, " "), asker)
			if err != nil {
				return err
			}
			if !res.Triggered {
				fmt.Printf("Not triggered: the message does not mention %s.\n", strings.Join(cfg.Agent.Triggers, " or "))
				return nil
			}
			fmt.Printf("Question: %q\n", res.Question)
			if res.Context != nil {
				fmt.Printf("Web context: %d result(s)\n", len(res.Context.Entries))
			} else {
				fmt.Println("Web context: none")
			}
			fmt.Println()
			fmt.Println(res.Reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&asker, "as", "", "display name of the asker (default: agent.defaultAsker)")
	return cmd
}
