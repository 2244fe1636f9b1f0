package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/config"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagEmail    string
	flagPassword string
	flagCode     string
	flagToken    string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the pixelart server",
	Long: `Sign in with email and password, or store an existing session token.

  pixelart login --email you@example.com --password secret
  pixelart login --email admin@example.com --password secret --code 123456
  pixelart login --token eyJhbGciOi...

The password may also come from PIXELART_PASSWORD. Accounts with two-factor
enabled need --code (an authenticator code or a recovery code).`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&flagEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&flagPassword, "password", "", "Account password")
	loginCmd.Flags().StringVar(&flagCode, "code", "", "Two-factor or recovery code")
	loginCmd.Flags().StringVar(&flagToken, "token", "", "Existing session token")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	if flagToken != "" {
		return loginWithToken(flagToken)
	}

	password := flagPassword
	if password == "" {
		password = os.Getenv("PIXELART_PASSWORD")
	}
	if strings.TrimSpace(flagEmail) == "" || password == "" {
		return errors.New("--email and --password are required")
	}

	client := api.NewClient(cfg.ServerURL, "")
	var resp api.Response[api.LoginResponse]
	err := client.Post("/auth/login", map[string]string{
		"email":    flagEmail,
		"password": password,
	}, &resp)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return errors.New("invalid email or password")
		}
		return fmt.Errorf("logging in: %w", err)
	}

	login := resp.Data
	if login.MFARequired {
		if flagCode == "" {
			return errors.New("two-factor code required: rerun with --code")
		}
		var verified api.Response[api.LoginResponse]
		if err := client.Post("/auth/mfa/verify", map[string]string{
			"mfaToken": login.MFAToken,
			"code":     flagCode,
		}, &verified); err != nil {
			return fmt.Errorf("verifying code: %w", err)
		}
		login = verified.Data
	}

	return saveSession(login.Token, login.User)
}

func loginWithToken(token string) error {
	client := api.NewClient(cfg.ServerURL, token)
	var resp api.Response[api.User]
	if err := client.Get("/auth/me", nil, &resp); err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return errors.New("invalid token: server returned 401")
		}
		return fmt.Errorf("validating token: %w", err)
	}
	return saveSession(token, resp.Data)
}

func saveSession(token string, user api.User) error {
	cfg.Token = token
	cfg.Email = user.Email
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(output.Out, "Logged in as %s (%s)\n", user.Name, user.Email)
	return nil
}
