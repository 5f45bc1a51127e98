package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/golojack/golojack/actions/devices"
	"github.com/golojack/golojack/login"
)

func main() {
	cmd := &cli.Command{
		Name:    "golojack",
		Usage:   "Device tracking CLI",
		Version: "0.1.0",
		Action: func(context.Context, *cli.Command) error {
			fmt.Println("golojack - Use 'golojack help' for available commands")
			return nil
		},
		Commands: []*cli.Command{
			login.LoginCommand,
			login.LogoutCommand,
			login.StatusCommand,
			devices.DevicesCommand,
			devices.LocateCommand,
			devices.HistoryCommand,
			devices.CommandCommand,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
