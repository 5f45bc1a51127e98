package devices

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/golojack/golojack/providers"
)

// CommandCommand dispatches a remote command to a device and reports
// whether the service accepted it.
var CommandCommand = &cli.Command{
	Name:      "command",
	Usage:     "Send a remote command to a device (locate, lock, unlock, ring, ...)",
	ArgsUsage: "<device-id-or-name> <command>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "message", Usage: "message shown on the device (lock only)"},
		&cli.StringFlag{Name: "passcode", Usage: "unlock passcode (lock only)"},
		&cli.IntFlag{Name: "duration", Usage: "ring duration in seconds (ring only)"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	},
	Action: runCommand,
}

func runCommand(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: command <device-id-or-name> <command>")
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

	name := cmd.Args().Get(1)
	var accepted bool
	switch name {
	case "lock":
		accepted, err = dev.Lock(ctx, cmd.String("message"), cmd.String("passcode"))
	case "unlock":
		accepted, err = dev.Unlock(ctx)
	case "ring":
		accepted, err = dev.Ring(ctx, cmd.Int("duration"))
	case "locate":
		accepted, err = dev.RequestLocationUpdate(ctx)
	default:
		accepted, err = dev.SendCommand(ctx, name)
	}
	if err != nil {
		return fmt.Errorf("command failed: %w", err)
	}

	if accepted {
		fmt.Printf("✓ %s accepted '%s'\n", dev.Name(), name)
	} else {
		fmt.Printf("⚠ %s did not accept '%s'\n", dev.Name(), name)
	}
	return nil
}
