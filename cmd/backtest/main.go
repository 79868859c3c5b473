package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/moznion/go-optional"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/meridian-lab/meridian-trading/internal/backtest/engine"
	enginev1 "github.com/meridian-lab/meridian-trading/internal/backtest/engine/engine_v1"
)

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Replay collected market data through the signal and lifecycle rules",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to replay config YAML",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to a collected DuckDB data file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Results folder for the report and run journal",
				Value:   "results",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the progress bar",
			},
		},
		Action: runBacktest,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runBacktest(ctx context.Context, cmd *cli.Command) error {
	configBytes, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	eng := enginev1.NewReplayEngineV1()
	if err := eng.Initialize(string(configBytes)); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	if err := eng.SetDataPath(cmd.String("data")); err != nil {
		return fmt.Errorf("failed to set data path: %w", err)
	}
	output := cmd.String("output")
	if err := eng.SetResultsFolder(output); err != nil {
		return fmt.Errorf("failed to set results folder: %w", err)
	}

	onProgress := optional.None[engine.OnProgressCallback]()
	if !cmd.Bool("quiet") {
		var bar *progressbar.ProgressBar
		callback := engine.OnProgressCallback(func(current, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total))
			}
			_ = bar.Set(current)
		})
		onProgress = optional.Some(callback)
	}

	report, err := eng.Run(ctx, onProgress)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	fmt.Printf("\nReplay complete for %s\n", report.Instrument)
	fmt.Printf("  Trades:       %d (%d won, %d lost, %.1f%% win rate)\n",
		report.TotalTrades, report.WinningTrades, report.LosingTrades, report.WinRate*100)
	fmt.Printf("  Net PnL:      %.2f (%.2f%% return)\n", report.TotalPnL, report.TotalReturnPct)
	fmt.Printf("  Balance:      %.2f -> %.2f\n", report.InitialBalance, report.FinalBalance)
	fmt.Printf("  Max drawdown: %.2f (%.2f%%)\n", report.MaxDrawdown, report.MaxDrawdownPct)
	fmt.Printf("  Sharpe:       %.2f\n", report.SharpeRatio)
	fmt.Printf("Results written to %s\n", output)

	return nil
}
