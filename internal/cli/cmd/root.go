package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/config"
	"github.com/spf13/cobra"
)

var (
	flagJSON      bool
	flagServerURL string

	cfg       *config.Config
	apiClient *api.Client
)

var rootCmd = &cobra.Command{
	Use:   "pixelart",
	Short: "Pixel art studio CLI",
	Long: `pixelart talks to the commission service and manages local site backups.

Get started:
  pixelart login --email you@example.com --password ...
  pixelart requests ls
  pixelart artworks ls
  pixelart backup create --source ./site --dest ./backups`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if flagServerURL != "" {
			cfg.ServerURL = flagServerURL
		} else if env := os.Getenv("PIXELART_SERVER"); env != "" {
			cfg.ServerURL = env
		}
		apiClient = api.NewClient(cfg.ServerURL, cfg.Token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Override server URL (default: from config, PIXELART_SERVER or http://localhost:8080)")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func requireAuth() error {
	if cfg == nil || !cfg.HasToken() {
		return errors.New(`not authenticated: run "pixelart login" first`)
	}
	return nil
}
