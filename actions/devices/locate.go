package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/golojack/golojack/client"
	"github.com/golojack/golojack/providers"
)

// LocateCommand reports the current location of one device, or of all
// devices with --all.
var LocateCommand = &cli.Command{
	Name:      "locate",
	Usage:     "Show the last known location of a device",
	ArgsUsage: "<device-id-or-name>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "locate every device on the account"},
		&cli.BoolFlag{Name: "fresh", Usage: "request a fresh fix from the device first"},
		&cli.BoolFlag{Name: "cached", Usage: "print the locally cached location without a network call"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	},
	Action: runLocate,
}

func runLocate(ctx context.Context, cmd *cli.Command) error {
	p, err := providers.NewDeviceProvider(cmd.Bool("debug"))
	if err != nil {
		return err
	}
	defer p.Close()

	if cmd.Bool("all") {
		return locateAll(ctx, p)
	}

	if cmd.Args().Len() == 0 {
		return fmt.Errorf("device id or name required (or use --all)")
	}

	if cmd.Bool("cached") {
		return printCachedLocation(p, cmd.Args().First())
	}

	dev, err := findDevice(ctx, p.Client, cmd.Args().First())
	if err != nil {
		return err
	}

	var loc *client.Location
	if cmd.Bool("fresh") {
		fmt.Println("Requesting fresh fix...")
		loc, err = locateFresh(ctx, dev)
	} else {
		loc, err = dev.GetLocation(ctx, false)
	}
	if err != nil {
		return fmt.Errorf("failed to locate %s: %w", dev.Name(), err)
	}

	printLocation(dev.Name(), loc)
	cacheLocation(p, dev, loc)
	return nil
}

// locateResult is one device's outcome in a bulk locate.
type locateResult struct {
	device *client.Device
	loc    *client.Location
	err    error
}

func locateAll(ctx context.Context, p *providers.DeviceProvider) error {
	assets, err := p.Client.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	if len(assets) == 0 {
		fmt.Println("No devices on this account")
		return nil
	}

	progress := mpb.New(mpb.WithWidth(60))
	bar := progress.AddBar(int64(len(assets)),
		mpb.PrependDecorators(
			decor.Name("📍 Locating", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WCSyncSpace), "done"),
		),
	)

	results := make([]locateResult, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, a := range assets {
		dev := deviceOf(a)
		results[i].device = dev
		g.Go(func() error {
			loc, err := dev.GetLocation(gctx, false)
			results[i].loc = loc
			results[i].err = err
			bar.Increment()
			// Failures are reported per device, not aborted on.
			return nil
		})
	}
	_ = g.Wait()
	progress.Wait()

	fmt.Println()
	for _, r := range results {
		if r.err != nil {
			fmt.Printf("⚠ %s: %v\n", r.device.Name(), r.err)
			continue
		}
		printLocation(r.device.Name(), r.loc)
		cacheLocation(p, r.device, r.loc)
	}
	return nil
}

// locateFresh asks the device for a new fix and polls until a report
// newer than the pre-command baseline arrives, or the wait runs out.
func locateFresh(ctx context.Context, dev *client.Device) (*client.Location, error) {
	baseline, err := dev.RequestFreshLocation(ctx)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}

		loc, err := dev.GetLocation(ctx, true)
		if err != nil {
			return nil, err
		}
		if loc != nil && loc.Timestamp != nil &&
			(baseline == nil || loc.Timestamp.After(*baseline)) {
			return loc, nil
		}
	}

	// No fresher fix arrived; fall back to whatever is cached.
	fmt.Println("⚠ Device did not report a fresh fix in time")
	return dev.GetLocation(ctx, false)
}

func deviceOf(a client.Asset) *client.Device {
	switch v := a.(type) {
	case *client.Vehicle:
		return &v.Device
	case *client.Device:
		return v
	}
	return nil
}

func printLocation(name string, loc *client.Location) {
	if loc == nil || !loc.HasFix() {
		fmt.Printf("📡 %s: no location fix available\n", name)
		return
	}
	fmt.Printf("📍 %s: %.6f, %.6f\n", name, *loc.Latitude, *loc.Longitude)
	if loc.Address != "" {
		fmt.Printf("   %s\n", loc.Address)
	}
	if loc.Timestamp != nil {
		fmt.Printf("   As of %s\n", loc.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
	if loc.Speed != nil {
		fmt.Printf("   Speed: %.1f\n", *loc.Speed)
	}
}

// printCachedLocation serves the last locate result from the encrypted
// local cache; --cached only works with a device id, since resolving a
// name needs the network anyway.
func printCachedLocation(p *providers.DeviceProvider, deviceID string) error {
	data, ok := p.Storage.GetCachedLocation(deviceID)
	if !ok {
		return fmt.Errorf("no cached location for %s (run locate without --cached first)", deviceID)
	}
	var loc client.Location
	if err := json.Unmarshal(data, &loc); err != nil {
		return fmt.Errorf("cached location is corrupted: %w", err)
	}
	printLocation(deviceID, &loc)
	return nil
}

func cacheLocation(p *providers.DeviceProvider, dev *client.Device, loc *client.Location) {
	if loc == nil {
		return
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return
	}
	if err := p.Storage.CacheLocation(dev.ID(), data, int64(p.Config.CacheTTL.Seconds())); err != nil {
		p.Logger.Warn("failed to cache location")
	}
}
