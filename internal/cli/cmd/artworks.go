package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagArtUser      string
	flagArtOutput    string
	flagArtPresigned bool
	flagArtWorkers   int
)

var artworksCmd = &cobra.Command{
	Use:     "artworks",
	Aliases: []string{"art"},
	Short:   "List, download and deliver artworks",
}

var artworksLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List artworks in your folder (or --user for admins)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireAuth(); err != nil {
			return err
		}

		params := url.Values{}
		if flagArtUser != "" {
			params.Set("userId", flagArtUser)
		}

		var resp api.Response[[]api.Artwork]
		if err := apiClient.Get("/artworks", params, &resp); err != nil {
			return fmt.Errorf("listing artworks: %w", err)
		}

		if flagJSON {
			output.JSON(resp.Data)
			return nil
		}
		output.ArtworkTable(resp.Data)
		return nil
	},
}

var artworksDownloadCmd = &cobra.Command{
	Use:   "download <name> [local-dir]",
	Short: "Download an artwork",
	Long: `Download an artwork from your folder, or from --user's folder as an admin.

  pixelart artworks download knight.png
  pixelart artworks download knight.png ./out --presigned`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runArtworkDownload,
}

var artworksUploadCmd = &cobra.Command{
	Use:   "upload <user-id> <file>...",
	Short: "Deliver one or more artworks to a customer (admin)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runArtworkUpload,
}

func init() {
	artworksLsCmd.Flags().StringVar(&flagArtUser, "user", "", "Owner user ID (admin)")
	artworksDownloadCmd.Flags().StringVar(&flagArtUser, "user", "", "Owner user ID (admin)")
	artworksDownloadCmd.Flags().StringVarP(&flagArtOutput, "output", "o", "", "Output file path (overrides default naming)")
	artworksDownloadCmd.Flags().BoolVar(&flagArtPresigned, "presigned", false, "Fetch through a presigned storage URL")
	artworksUploadCmd.Flags().IntVarP(&flagArtWorkers, "workers", "w", 4, "Number of concurrent uploads")

	artworksCmd.AddCommand(artworksLsCmd, artworksDownloadCmd, artworksUploadCmd)
	rootCmd.AddCommand(artworksCmd)
}

func currentUserID() (string, error) {
	if flagArtUser != "" {
		return flagArtUser, nil
	}
	var resp api.Response[api.User]
	if err := apiClient.Get("/auth/me", nil, &resp); err != nil {
		return "", fmt.Errorf("fetching user: %w", err)
	}
	return resp.Data.ID, nil
}

func runArtworkDownload(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}

	ownerID, err := currentUserID()
	if err != nil {
		return err
	}

	name := args[0]
	destDir := "."
	if len(args) > 1 {
		destDir = args[1]
	}
	dest := filepath.Join(destDir, filepath.Base(name))
	if flagArtOutput != "" {
		dest = flagArtOutput
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	base := "/artworks/" + url.PathEscape(ownerID) + "/" + url.PathEscape(name)
	if flagArtPresigned {
		var link api.Response[api.DownloadURLResponse]
		if err := apiClient.Get(base+"/url", nil, &link); err != nil {
			return fmt.Errorf("getting download URL: %w", err)
		}
		if err := apiClient.DownloadToFile(link.Data.URL, dest); err != nil {
			return fmt.Errorf("downloading: %w", err)
		}
	} else {
		f, err := os.Create(dest)
		if err != nil {
			return err
		}
		if _, err := apiClient.Download(base+"/download", nil, f); err != nil {
			f.Close()
			_ = os.Remove(dest)
			return fmt.Errorf("downloading: %w", err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	fmt.Fprintf(output.Out, "Downloaded %s -> %s\n", name, dest)
	return nil
}

func runArtworkUpload(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}

	userID := args[0]
	files := args[1:]
	for _, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}
	}

	workers := flagArtWorkers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)

	var failed atomic.Int64
	results := make([]api.Artwork, len(files))
	errs := make([]error, len(files))
	for i, path := range files {
		g.Go(func() error {
			var resp api.Response[api.Artwork]
			if err := apiClient.Upload("/users/"+url.PathEscape(userID)+"/artworks", "file", path, nil, &resp); err != nil {
				errs[i] = err
				failed.Add(1)
				return nil
			}
			results[i] = resp.Data
			return nil
		})
	}
	_ = g.Wait()

	delivered := make([]api.Artwork, 0, len(files))
	for i, path := range files {
		if errs[i] != nil {
			fmt.Fprintf(os.Stderr, "  Failed: %s: %v\n", filepath.Base(path), errs[i])
			continue
		}
		delivered = append(delivered, results[i])
		if !flagJSON {
			fmt.Fprintf(output.Out, "  Uploaded: %s (%s)\n", results[i].Name, output.FormatSize(results[i].Size))
		}
	}

	if flagJSON {
		output.JSON(delivered)
	} else {
		fmt.Fprintf(output.Out, "\nDone: %d uploaded, %d failed\n", len(delivered), failed.Load())
	}
	if failed.Load() > 0 {
		return fmt.Errorf("%d file(s) failed to upload", failed.Load())
	}
	return nil
}
