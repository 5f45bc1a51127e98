package devices

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/golojack/golojack/providers"
)

// HistoryCommand prints recent location reports for a device, newest
// first.
var HistoryCommand = &cli.Command{
	Name:      "history",
	Usage:     "Show recent location reports for a device",
	ArgsUsage: "<device-id-or-name>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "maximum number of reports"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	},
	Action: runHistory,
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("device id or name required")
	}

	p, err := providers.NewDeviceProvider(cmd.Bool("debug"))
	if err != nil {
		return err
	}
	defer p.Close()

	dev, err := findDevice(ctx, p.Client, cmd.Args().First())
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit <= 0 {
		limit = 20
	}

	fmt.Printf("History for %s (up to %d reports):\n\n", dev.Name(), limit)

	it := dev.History(limit)
	count := 0
	for it.Next(ctx) {
		loc := it.Location()
		count++
		ts := "unknown time"
		if loc.Timestamp != nil {
			ts = loc.Timestamp.Local().Format("2006-01-02 15:04:05")
		}
		if loc.HasFix() {
			fmt.Printf("%3d. %s  %.6f, %.6f", count, ts, *loc.Latitude, *loc.Longitude)
		} else {
			fmt.Printf("%3d. %s  (no fix)", count, ts)
		}
		if loc.Address != "" {
			fmt.Printf("  %s", loc.Address)
		}
		fmt.Println()
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("failed to fetch history: %w", err)
	}
	if count == 0 {
		fmt.Println("No reports found")
	}
	return nil
}
