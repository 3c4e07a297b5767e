package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "candlerush/internal/cli"
	"candlerush/internal/config"
	"candlerush/internal/session"
)

func main() {
	cfg := config.LoadCLIFromEnv()

	root := &cobra.Command{
		Use:          "crush",
		Short:        "Candlerush trading game client",
		SilenceUsage: true,
	}

	root.AddCommand(
		newPlayCmd(&cfg),
		newStatusCmd(&cfg),
		newCheckoutCmd(&cfg),
		newPortalCmd(&cfg),
		newResetCmd(&cfg),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func requireUser(cfg *config.CLIConfig) (string, error) {
	if cfg.APIBaseURL == "" {
		return "", fmt.Errorf("set CRUSH_API_BASE_URL to use subscription commands")
	}
	if cfg.UserID == "" {
		return "", fmt.Errorf("set CRUSH_USER_ID to use subscription commands")
	}
	return cfg.UserID, nil
}

func newStatusCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show your subscription tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			rec, err := cl.NewClient(cfg.APIBaseURL).Status(ctx, userID)
			if err != nil {
				return err
			}
			if rec.IsPro {
				plan := "unknown"
				if rec.Plan != nil {
					plan = *rec.Plan
				}
				printSuccess("Pro (%s plan)", plan)
				if rec.ExpiresAt != nil {
					printNeutral("renews/expires %s", *rec.ExpiresAt)
				}
			} else {
				printNeutral("Free tier (%d trading days per session)", session.FreeMaxMoves)
			}
			return nil
		},
	}
}

func newCheckoutCmd(cfg *config.CLIConfig) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "checkout <price-id>",
		Short: "Start a subscription checkout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			url, err := cl.NewClient(cfg.APIBaseURL).Checkout(ctx, strings.TrimSpace(args[0]), userID, email)
			if err != nil {
				return err
			}
			printSuccess("Open this link to finish checkout:")
			fmt.Println(url)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "prefill checkout email")
	return cmd
}

func newPortalCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "portal",
		Short: "Open the billing portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := requireUser(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			url, err := cl.NewClient(cfg.APIBaseURL).Portal(ctx, userID)
			if err != nil {
				return err
			}
			printSuccess("Billing portal:")
			fmt.Println(url)
			return nil
		},
	}
}

func newResetCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the saved session and bankroll",
		RunE: func(cmd *cobra.Command, args []string) error {
			answer, err := promptRequired("Type 'reset' to wipe saved progress")
			if err != nil {
				return err
			}
			if answer != "reset" {
				printWarn("Aborted.")
				return nil
			}
			store, err := session.NewStore(cfg.StateDir)
			if err != nil {
				return err
			}
			if err := store.Reset(); err != nil {
				return err
			}
			printSuccess("Progress wiped. Fresh bankroll: %.0f", session.DefaultBankroll)
			return nil
		},
	}
}
