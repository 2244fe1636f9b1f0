package cmd

import (
	"errors"
	"fmt"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/backup"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/output"
	"github.com/spf13/cobra"
)

var (
	flagBackupSource  string
	flagBackupDest    string
	flagBackupTarget  string
	flagBackupWorkers int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot and restore a local directory",
	Long: `Copy a project directory into timestamped backup folders and restore them.

  pixelart backup create --source ./site --dest ./backups
  pixelart backup list --dest ./backups
  pixelart backup restore backup-20260314-150926 --dest ./backups --target ./site

.git and node_modules are never copied.`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newBackupManager()
		b, err := m.Create(cmd.Context(), flagBackupSource)
		if err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
		if flagJSON {
			output.JSON(b)
			return nil
		}
		fmt.Fprintf(output.Out, "Created %s (%d files, %s)\n", b.Name, b.Files, output.FormatSize(b.Bytes))
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		backups, err := newBackupManager().List()
		if err != nil {
			return fmt.Errorf("listing backups: %w", err)
		}
		if flagJSON {
			if backups == nil {
				backups = []backup.Backup{}
			}
			output.JSON(backups)
			return nil
		}
		output.BackupTable(backups)
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Copy a backup back into the target directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := newBackupManager().Restore(cmd.Context(), args[0], flagBackupTarget)
		if err != nil {
			if errors.Is(err, backup.ErrNotFound) {
				return fmt.Errorf("no backup named %q in %s", args[0], flagBackupDest)
			}
			return fmt.Errorf("restoring backup: %w", err)
		}
		if flagJSON {
			output.JSON(b)
			return nil
		}
		fmt.Fprintf(output.Out, "Restored %s -> %s (%d files)\n", b.Name, b.Path, b.Files)
		return nil
	},
}

func newBackupManager() *backup.Manager {
	m := backup.NewManager(flagBackupDest)
	if flagBackupWorkers > 0 {
		m.Workers = flagBackupWorkers
	}
	return m
}

func init() {
	backupCmd.PersistentFlags().StringVar(&flagBackupDest, "dest", "backups", "Directory holding the backups")
	backupCmd.PersistentFlags().IntVarP(&flagBackupWorkers, "workers", "w", backup.DefaultWorkers, "Number of concurrent file copies")
	backupCreateCmd.Flags().StringVar(&flagBackupSource, "source", ".", "Directory to back up")
	backupRestoreCmd.Flags().StringVar(&flagBackupTarget, "target", ".", "Directory to restore into")

	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
