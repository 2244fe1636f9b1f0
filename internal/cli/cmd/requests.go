package cmd

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagReqStatus string
	flagReqUnread bool
	flagReqUser   string
	flagReqPage   int
	flagReqLimit  int
	flagReqLinks  []string
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"req"},
	Short:   "List, create and update commission requests",
}

var requestsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List requests (your own, or everyone's for admins)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagReqStatus != "" {
			params.Set("status", flagReqStatus)
		}
		if flagReqUnread {
			params.Set("unread", "true")
		}
		if flagReqUser != "" {
			params.Set("userId", flagReqUser)
		}
		if flagReqPage > 0 {
			params.Set("page", strconv.Itoa(flagReqPage))
		}
		if flagReqLimit > 0 {
			params.Set("limit", strconv.Itoa(flagReqLimit))
		}

		var resp api.Response[[]api.Request]
		if err := apiClient.Get("/requests", params, &resp); err != nil {
			return fmt.Errorf("listing requests: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.RequestTable(resp.Data)
		if p := resp.Pagination; p != nil && p.TotalPages > 1 {
			fmt.Fprintf(output.Out, "\nPage %d of %d (%d total)\n", p.Page, p.TotalPages, p.Total)
		}
		return nil
	},
}

var requestsCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Submit a new commission request",
	Long: `Submit a new commission request.

  pixelart requests create "32x32 knight sprite" --link https://example.com/ref.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		body := map[string]interface{}{
			"description":    strings.Join(args, " "),
			"referenceLinks": flagReqLinks,
		}
		if flagReqLinks == nil {
			body["referenceLinks"] = []string{}
		}

		var resp api.Response[api.Request]
		if err := apiClient.Post("/requests", body, &resp); err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		fmt.Fprintf(output.Out, "Created request %s (%s)\n", resp.Data.ID, resp.Data.Status)
		return nil
	},
}

var requestsStatusCmd = &cobra.Command{
	Use:   "status <id> <pending|in_progress|completed|rejected>",
	Short: "Change a request's status (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp api.Response[api.Request]
		if err := apiClient.Put("/requests/"+url.PathEscape(args[0])+"/status", map[string]string{
			"status": args[1],
		}, &resp); err != nil {
			return fmt.Errorf("updating status: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		fmt.Fprintf(output.Out, "Request %s is now %s\n", resp.Data.ID, resp.Data.Status)
		return nil
	},
}

func init() {
	requestsLsCmd.Flags().StringVar(&flagReqStatus, "status", "", "Filter by status")
	requestsLsCmd.Flags().BoolVar(&flagReqUnread, "unread", false, "Only unread requests (admin)")
	requestsLsCmd.Flags().StringVar(&flagReqUser, "user", "", "Only requests from this user ID (admin)")
	requestsLsCmd.Flags().IntVar(&flagReqPage, "page", 0, "Page number")
	requestsLsCmd.Flags().IntVar(&flagReqLimit, "limit", 0, "Page size")
	requestsCreateCmd.Flags().StringSliceVar(&flagReqLinks, "link", nil, "Reference link (repeatable)")

	requestsCmd.AddCommand(requestsLsCmd, requestsCreateCmd, requestsStatusCmd)
	rootCmd.AddCommand(requestsCmd)
}
