package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/meridian-lab/meridian-trading/internal/logger"
	"github.com/meridian-lab/meridian-trading/internal/types"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata"
	"github.com/meridian-lab/meridian-trading/pkg/marketdata/provider"
)

func main() {
	cmd := &cli.Command{
		Name:  "collect",
		Usage: "Download and maintain candle history for configured instruments",
		Commands: []*cli.Command{
			downloadCommand(),
			refreshCommand(),
			followCommand(),
			providersCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil && err != context.Canceled {
		log.Fatal(err)
	}
}

// commonFlags are shared by every subcommand that touches a store.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "provider",
			Aliases: []string{"p"},
			Usage:   fmt.Sprintf("Data provider to use (%s)", strings.Join(marketdata.GetSupportedDataProviders(), ", ")),
			Value:   string(provider.ProviderBinance),
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "Directory holding the per-instrument DuckDB stores",
			Value: "data/market",
		},
		&cli.StringFlag{
			Name:    "interval",
			Aliases: []string{"n"},
			Usage:   "Candle interval (1m, 5m, 15m, 1h, 4h, 1d)",
			Value:   string(types.Interval15m),
		},
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download a historical window for one instrument",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "instrument",
				Aliases:  []string{"i"},
				Usage:    "Instrument symbol, e.g. BTCUSDT",
				Required: true,
			},
			&cli.TimestampFlag{
				Name:     "start",
				Aliases:  []string{"s"},
				Usage:    "Start date in `YYYY-MM-DD` format",
				Required: true,
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End date in `YYYY-MM-DD` format. Defaults to now.",
				Value:   time.Now().UTC(),
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
		}, commonFlags()...),
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	interval, err := types.ParseInterval(cmd.String("interval"))
	if err != nil {
		return err
	}

	onProgress := func(current, total float64, message string) {
		if total > 0 {
			fmt.Printf("\r%-40s %5.1f%%", message, current/total*100)
		}
	}

	client, err := newClient(cmd, onProgress)
	if err != nil {
		return err
	}

	result, err := client.Download(ctx, marketdata.DownloadParams{
		Instrument: cmd.String("instrument"),
		Interval:   interval,
		Start:      cmd.Timestamp("start"),
		End:        cmd.Timestamp("end"),
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	fmt.Printf("Wrote %d candles to %s\n", result.Written, result.Path)

	return nil
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Top up the stores of one or more instruments to now",
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{
				Name:     "instrument",
				Aliases:  []string{"i"},
				Usage:    "Instrument symbol, repeatable",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "backfill",
				Aliases: []string{"b"},
				Usage:   "Days of history to backfill when a store is empty",
				Value:   30,
			},
		}, commonFlags()...),
		Action: refreshAction,
	}
}

func refreshAction(ctx context.Context, cmd *cli.Command) error {
	interval, err := types.ParseInterval(cmd.String("interval"))
	if err != nil {
		return err
	}

	client, err := newClient(cmd, nil)
	if err != nil {
		return err
	}

	backfill := time.Duration(cmd.Int("backfill")) * 24 * time.Hour
	now := time.Now().UTC()

	for _, instrument := range cmd.StringSlice("instrument") {
		result, err := client.Refresh(ctx, instrument, interval, backfill, now)
		if err != nil {
			return fmt.Errorf("refresh failed for %s: %w", instrument, err)
		}

		fmt.Printf("%s: %d new candles in %s\n", instrument, result.Written, result.Path)
	}

	return nil
}

func followCommand() *cli.Command {
	return &cli.Command{
		Name:  "follow",
		Usage: "Tail the realtime feed and store each finalized candle",
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{
				Name:     "instrument",
				Aliases:  []string{"i"},
				Usage:    "Instrument symbol, repeatable",
				Required: true,
			},
		}, commonFlags()...),
		Action: followAction,
	}
}

func followAction(ctx context.Context, cmd *cli.Command) error {
	interval, err := types.ParseInterval(cmd.String("interval"))
	if err != nil {
		return err
	}

	client, err := newClient(cmd, nil)
	if err != nil {
		return err
	}

	instruments := cmd.StringSlice("instrument")
	fmt.Printf("Following %s candles for %s, interrupt to stop...\n",
		interval, strings.Join(instruments, ", "))

	if err := client.Follow(ctx, instruments, interval); err != nil && err != context.Canceled {
		return fmt.Errorf("follow failed: %w", err)
	}

	return nil
}

func providersCommand() *cli.Command {
	return &cli.Command{
		Name:  "providers",
		Usage: "List supported data providers",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			for _, name := range marketdata.GetSupportedDataProviders() {
				fmt.Println(name)
			}

			return nil
		},
	}
}

func newClient(cmd *cli.Command, onProgress marketdata.OnProgress) (*marketdata.Client, error) {
	zlog, err := logger.NewLogger()
	if err != nil {
		return nil, err
	}

	config := marketdata.ClientConfig{
		Provider:      provider.ProviderType(cmd.String("provider")),
		Directory:     cmd.String("dir"),
		PolygonApiKey: os.Getenv("POLYGON_API_KEY"),
	}

	return marketdata.NewClient(config, onProgress, zlog)
}
