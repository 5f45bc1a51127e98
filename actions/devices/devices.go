// Package devices implements the device-facing CLI commands: listing,
// locating, history, and raw command dispatch.
package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/golojack/golojack/client"
	"github.com/golojack/golojack/providers"
)

// DevicesCommand lists all devices on the account.
var DevicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List devices on the account",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	},
	Action: runDevices,
}

func runDevices(ctx context.Context, cmd *cli.Command) error {
	p, err := providers.NewDeviceProvider(cmd.Bool("debug"))
	if err != nil {
		return err
	}
	defer p.Close()

	assets, err := p.Client.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(assets) == 0 {
		fmt.Println("No devices on this account")
		return nil
	}

	fmt.Printf("Found %d device(s):\n\n", len(assets))
	for _, a := range assets {
		switch v := a.(type) {
		case *client.Vehicle:
			info := v.VehicleInfo()
			fmt.Printf("🚗 %s (%s)\n", v.Name(), v.ID())
			if info.Make != "" || info.Model != "" {
				fmt.Printf("   %d %s %s\n", info.Year, info.Make, info.Model)
			}
			if info.VIN != "" {
				fmt.Printf("   VIN: %s\n", info.VIN)
			}
		case *client.Device:
			fmt.Printf("📡 %s (%s)\n", v.Name(), v.ID())
		}
	}
	return nil
}

// findDevice resolves a device by id or by exact name.
func findDevice(ctx context.Context, c *client.Client, idOrName string) (*client.Device, error) {
	asset, err := c.GetDevice(ctx, idOrName)
	if err == nil {
		return deviceOf(asset), nil
	}

	var notFound *client.DeviceNotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	// Not an id; try matching by name.
	assets, listErr := c.ListDevices(ctx)
	if listErr != nil {
		return nil, err
	}
	for _, a := range assets {
		if a.Name() == idOrName {
			return deviceOf(a), nil
		}
	}
	return nil, err
}
