package cmd

import (
	"fmt"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/config"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
)

// Version is the CLI version, injected at build time:
//
//	go build -ldflags "-X github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/cmd.Version=1.2.3" ./cmd/pixelart
var Version = "dev"

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Clear(); err != nil {
			return fmt.Errorf("clearing config: %w", err)
		}
		fmt.Fprintln(output.Out, "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current authenticated user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp api.Response[api.User]
		if err := apiClient.Get("/auth/me", nil, &resp); err != nil {
			return fmt.Errorf("fetching user: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.UserInfo(resp.Data)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI and server version",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp api.Response[api.VersionInfo]
		serverErr := apiClient.Get("/version", nil, &resp)

		var serverInfo *api.VersionInfo
		if serverErr == nil {
			serverInfo = &resp.Data
		}

		if flagJSON {
			type jsonOut struct {
				CLIVersion    string `json:"cliVersion"`
				ServerVersion string `json:"serverVersion,omitempty"`
				APIVersion    string `json:"apiVersion,omitempty"`
				ServerError   string `json:"serverError,omitempty"`
			}
			out := jsonOut{CLIVersion: Version}
			if serverInfo != nil {
				out.ServerVersion = serverInfo.Version
				out.APIVersion = serverInfo.APIVersion
			} else {
				out.ServerError = serverErr.Error()
			}
			output.JSON(out)
			return nil
		}

		output.VersionInfo(Version, serverInfo, serverErr)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd, whoamiCmd, versionCmd)
}
