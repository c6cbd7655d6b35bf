package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"mojobot/internal/config"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your mojobot setup",
		Long: `Verifies that the configuration, credentials and listen port are usable.
With --online the completion endpoint and the chat platform are contacted too.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("mojobot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r report

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				r.warn("Config file", fmt.Sprintf("not found at %s (defaults + environment)", cfgPath))
			} else {
				r.pass("Config file", cfgPath)
			}

			// 2. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				r.fail("Config validation", err.Error())
				return r.summary()
			}
			r.pass("Config validation", "valid")

			a := buildApp(cfg)

			// 3. Credentials
			if a.completion.Configured() {
				r.pass("Completion", fmt.Sprintf("%s via %s", cfg.Completion.Model, cfg.Completion.APIBase))
			} else {
				r.fail("Completion", "AI_GATEWAY_API_KEY not set")
			}
			if a.chat.Configured() {
				r.pass("Chat credentials", "key and secret set")
			} else {
				r.fail("Chat credentials", "STREAM_API_KEY and STREAM_API_SECRET are required")
			}
			if a.search.Configured() {
				r.pass("Web search", fmt.Sprintf("%s, %d result(s)", a.search.Name(), cfg.Search.NumResults))
			} else {
				r.warn("Web search", "EXA_API_KEY not set (answers use model knowledge only)")
			}
			if cfg.Chat.VerifyWebhookSignature {
				r.pass("Webhook signature", "verified with chat.apiSecret")
			} else {
				r.warn("Webhook signature", "not verified (chat.verifyWebhookSignature is off)")
			}

			// 4. Listen port
			if err := checkAddr(cfg.Addr()); err != nil {
				r.warn("Listen address", fmt.Sprintf("%s may be in use: %v", cfg.Addr(), err))
			} else {
				r.pass("Listen address", cfg.Addr()+" available")
			}

			// 5. Remote services
			if online {
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()

				if a.completion.Configured() {
					if err := a.completion.Healthy(ctx); err != nil {
						r.fail("Completion reachable", err.Error())
					} else {
						r.pass("Completion reachable", cfg.Completion.APIBase)
					}
				}
				if a.chat.Configured() {
					session, err := a.chat.Connect(ctx, a.identity)
					if err != nil {
						r.fail("Chat connect", err.Error())
					} else {
						_ = session.Close()
						r.pass("Chat connect", "connected as "+a.identity.ID)
					}
				}
			}

			return r.summary()
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also contact the completion endpoint and the chat platform")
	return cmd
}

type report struct {
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) summary() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running mojobot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nmojobot should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! mojobot is ready to run.\n")
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
