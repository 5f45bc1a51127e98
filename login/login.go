// Package login implements the login, logout, and status commands.
package login

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/golojack/golojack/client"
	"github.com/golojack/golojack/internal/config"
	"github.com/golojack/golojack/internal/storage"
	"github.com/golojack/golojack/providers"
)

// LoginCommand authenticates against the tracking service and stores
// the resulting session locally.
var LoginCommand = &cli.Command{
	Name:  "login",
	Usage: "Log in to the tracking service and store the session",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "account username"},
		&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "account password (prompted if omitted)"},
		&cli.BoolFlag{Name: "save-credentials", Usage: "store credentials encrypted for later re-login"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
	},
	Action: runLogin,
}

// LogoutCommand removes the stored session and credentials.
var LogoutCommand = &cli.Command{
	Name:   "logout",
	Usage:  "Remove the stored session",
	Action: runLogout,
}

// StatusCommand shows whether a session is stored and still usable.
var StatusCommand = &cli.Command{
	Name:   "status",
	Usage:  "Show session status",
	Action: runStatus,
}

func runLogin(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize session storage: %w", err)
	}

	username := cmd.String("username")
	if username == "" {
		username = cfg.Username
	}
	password := cmd.String("password")
	if password == "" {
		password = cfg.Password
	}

	// Fall back to stored credentials before prompting.
	if username == "" || password == "" {
		if creds, err := store.LoadCredentials(); err == nil && creds != nil {
			if username == "" {
				username = creds.Username
			}
			if password == "" {
				password = creds.Password
			}
			fmt.Println("Using saved credentials")
		}
	}

	if username == "" {
		username, err = promptInput("Username: ")
		if err != nil {
			return err
		}
	}
	if password == "" {
		password, err = promptPassword("Password: ")
		if err != nil {
			return err
		}
	}

	logger := providers.NewLogger(cmd.Bool("debug") || cfg.Debug)

	fmt.Println("Logging in...")
	c, err := client.Create(ctx, cfg.BaseURL, username, password,
		client.WithTimeout(cfg.Timeout),
		client.WithLogger(logger),
	)
	if err != nil {
		if client.IsAuthError(err) {
			return fmt.Errorf("login rejected: %w", err)
		}
		return fmt.Errorf("login failed: %w", err)
	}
	defer c.Close()

	artifacts, ok := c.ExportAuth()
	if !ok {
		return fmt.Errorf("login succeeded but no session was produced")
	}
	if err := store.SaveSession(artifacts.ToMap()); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	if cmd.Bool("save-credentials") {
		if err := store.SaveCredentials(cfg.BaseURL, username, password); err != nil {
			fmt.Printf("⚠ Could not save credentials: %v\n", err)
		} else {
			fmt.Println("💾 Credentials saved")
		}
	}

	fmt.Printf("✓ Logged in as %s\n", username)
	if uid := c.UserID(); uid != "" {
		fmt.Printf("  User ID: %s\n", uid)
	}
	return nil
}

func runLogout(ctx context.Context, cmd *cli.Command) error {
	store, err := storage.NewStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize session storage: %w", err)
	}

	if !store.HasSession() {
		fmt.Println("No stored session")
		return nil
	}
	if err := store.DeleteSession(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := store.DeleteCredentials(); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if err := store.ClearCache(); err != nil {
		return fmt.Errorf("failed to clear location cache: %w", err)
	}

	fmt.Println("✓ Logged out")
	return nil
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	store, err := storage.NewStorage()
	if err != nil {
		return fmt.Errorf("failed to initialize session storage: %w", err)
	}

	stored, err := store.LoadSession()
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil {
		fmt.Println("Not logged in")
		return nil
	}

	artifacts, err := client.ArtifactsFromMap(stored.Artifacts)
	if err != nil {
		fmt.Printf("⚠ Stored session is corrupted: %v\n", err)
		return nil
	}

	fmt.Println("✓ Session stored")
	fmt.Printf("  Saved at: %s\n", time.Unix(stored.SavedAt, 0).Local().Format("2006-01-02 15:04:05"))
	if artifacts.UserID != "" {
		fmt.Printf("  User ID:  %s\n", artifacts.UserID)
	}
	if !artifacts.ExpiresAt.IsZero() {
		fmt.Printf("  Expires:  %s\n", artifacts.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	if artifacts.RefreshToken == "" {
		fmt.Println("  ⚠ No refresh token; session cannot renew itself")
	}
	return nil
}

func promptInput(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	// Not a terminal (piped input); fall back to plain read.
	return promptInput("")
}
