package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagExportFormat string
	flagExportOutput string
)

var unreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Show unread message and request counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		var resp api.Response[api.Snapshot]
		if err := apiClient.Get("/notifications/unread", nil, &resp); err != nil {
			return fmt.Errorf("fetching unread counts: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.Unread(resp.Data)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:       "export <users|requests>",
	Short:     "Export users or requests as CSV or XLSX (admin)",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"users", "requests"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}
		dataset := args[0]

		dir := "."
		if flagExportOutput != "" {
			dir = filepath.Dir(flagExportOutput)
		}
		tmp, err := os.CreateTemp(dir, "."+dataset+"-export-*")
		if err != nil {
			return fmt.Errorf("creating temp file: %w", err)
		}
		defer os.Remove(tmp.Name())

		name, err := apiClient.Download("/admin/export/"+dataset, url.Values{"format": {flagExportFormat}}, tmp)
		if closeErr := tmp.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return fmt.Errorf("exporting %s: %w", dataset, err)
		}

		dest := flagExportOutput
		if dest == "" {
			dest = filepath.Base(name)
			if name == "" {
				dest = fmt.Sprintf("%s-%s.%s", dataset, time.Now().UTC().Format("20060102-150405"), flagExportFormat)
			}
		}
		if err := os.Rename(tmp.Name(), dest); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}

		if flagJSON {
			output.JSON(map[string]string{"dataset": dataset, "format": flagExportFormat, "path": dest})
			return nil
		}
		fmt.Fprintf(output.Out, "Exported %s -> %s\n", dataset, dest)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportFormat, "format", "f", "csv", "Export format: csv or xlsx")
	exportCmd.Flags().StringVarP(&flagExportOutput, "output", "o", "", "Output file path (default: server-suggested name)")
	rootCmd.AddCommand(unreadCmd, exportCmd)
}
