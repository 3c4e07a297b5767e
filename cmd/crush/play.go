package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cl "candlerush/internal/cli"
	"candlerush/internal/config"
	"candlerush/internal/market"
	"candlerush/internal/session"
)

func newPlayCmd(cfg *config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "play <symbol>",
		Short: "Trade a ticker's historical candles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := strings.ToUpper(strings.TrimSpace(args[0]))
			return runPlay(cmd.Context(), cfg, symbol)
		},
	}
}

func runPlay(ctx context.Context, cfg *config.CLIConfig, symbol string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := session.NewStore(cfg.StateDir)
	if err != nil {
		return err
	}
	maxMoves := fetchMoveBudget(ctx, cfg, logger)

	// A resumable snapshot carries its own candle history; only fetch when a
	// fresh session is coming.
	var candles []market.Candle
	snap, err := store.LoadSnapshot()
	if err != nil {
		logger.Warn("saved session unreadable", "err", err)
	}
	if snap == nil || snap.StockSymbol != symbol {
		provider := &market.Fallback{
			Primary: market.NewHTTPProvider(cfg.MarketURL, cfg.FetchTimeout),
			Log:     logger,
		}
		candles, err = provider.Candles(ctx, symbol)
		if err != nil {
			return err
		}
	}

	ledger, resumed, err := session.NewArbiter(store, logger).Open(symbol, symbol, candles, maxMoves)
	if err != nil {
		return err
	}
	if resumed {
		printSuccess("Resumed %s on day %d.", symbol, ledger.CurrentIndex())
	} else {
		printHeader("New session: %s, bankroll %.2f, %d trading days.", symbol, ledger.Balance(), maxMoves)
	}

	return gameLoop(store, ledger)
}

// fetchMoveBudget asks the API for the entitlement tier; without an API base
// or user id, or on any failure, play falls back to the free tier.
func fetchMoveBudget(ctx context.Context, cfg *config.CLIConfig, logger *slog.Logger) int {
	if cfg.APIBaseURL == "" || cfg.UserID == "" {
		return session.FreeMaxMoves
	}
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rec, err := cl.NewClient(cfg.APIBaseURL).Status(reqCtx, cfg.UserID)
	if err != nil {
		logger.Warn("entitlement check failed, using free tier", "err", err)
		return session.FreeMaxMoves
	}
	if rec.IsPro {
		return session.ProMaxMoves
	}
	return session.FreeMaxMoves
}

func gameLoop(store *session.Store, ledger *session.Ledger) error {
	for {
		renderDay(ledger)
		if ledger.IsGameOver() {
			return settle(store, ledger)
		}

		input, err := promptRequired("[l]ong [s]hort [c]lose [a]ll-close [n]ext [x] stop [q]uit")
		if err != nil {
			return err
		}
		quit := false
		switch strings.ToLower(input) {
		case "l", "long":
			enter(ledger, session.Long)
		case "s", "short":
			enter(ledger, session.Short)
		case "c", "close":
			closeOne(ledger)
		case "a", "closeall":
			ledger.CloseAll()
		case "n", "next":
			ledger.SkipDay()
		case "x", "stop":
			ledger.Stop()
		case "q", "quit":
			quit = true
		default:
			printWarn("Unknown command %q.", input)
			continue
		}

		if ledger.IsGameOver() {
			renderDay(ledger)
			return settle(store, ledger)
		}
		if quit {
			// Synchronous save on exit so the session survives the process.
			if err := store.SaveSnapshot(ledger.Snapshot()); err != nil {
				return fmt.Errorf("save session: %w", err)
			}
			printNeutral("Session saved. Run play again within 24h to resume.")
			return nil
		}
		store.SaveSnapshotAsync(ledger.Snapshot())
	}
}

func enter(ledger *session.Ledger, dir session.Direction) {
	raw, err := promptOptional(fmt.Sprintf("Amount (blank = all %.2f)", ledger.Balance()))
	if err != nil {
		return
	}
	amount := 0.0
	if raw != "" {
		amount, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			printWarn("Not a number: %q.", raw)
			return
		}
	}
	before := len(ledger.Positions())
	ledger.Enter(dir, amount)
	if len(ledger.Positions()) == before {
		printWarn("Order not placed (position cap or no cash).")
	}
}

func closeOne(ledger *session.Ledger) {
	positions := ledger.Positions()
	switch len(positions) {
	case 0:
		printWarn("No open positions.")
	case 1:
		ledger.Close(positions[0].ID)
	default:
		raw, err := promptRequired(fmt.Sprintf("Which position (1-%d)", len(positions)))
		if err != nil {
			return
		}
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 1 || idx > len(positions) {
			printWarn("No such position.")
			return
		}
		ledger.Close(positions[idx-1].ID)
	}
}

func renderDay(ledger *session.Ledger) {
	candle, ok := ledger.CurrentCandle()
	if !ok {
		return
	}
	fmt.Println()
	printHeader("%s  %s  close %.2f  (%d moves left)",
		ledger.Symbol(), candle.Time.Format("2006-01-02"), candle.Close, ledger.MovesLeft())
	fmt.Printf("cash %.2f  equity %.2f  return %s%%  fees %.2f\n",
		ledger.Balance(), ledger.DisplayBalance(), signed(ledger.TotalReturn()), ledger.TotalCommissions())
	for i, p := range ledger.Positions() {
		fmt.Printf("  %d. %-5s %.4f @ %.2f  pnl %s\n",
			i+1, p.Type, p.Amount, p.EntryPrice, signed(p.PL(candle.Close)))
	}
}

func settle(store *session.Store, ledger *session.Ledger) error {
	final := ledger.Balance()
	if err := store.SettleGameOver(final); err != nil {
		return fmt.Errorf("settle session: %w", err)
	}
	fmt.Println()
	printHeader("Game over.")
	fmt.Printf("trades %d  wins %d  fees %.2f\n",
		ledger.TradeCount(), ledger.WinCount(), ledger.TotalCommissions())
	delta := final - ledger.StartingBalance()
	if delta >= 0 {
		printSuccess("Final bankroll %.2f (%s)", final, signed(delta))
	} else {
		printError("Final bankroll %.2f (%s)", final, signed(delta))
	}
	return nil
}
