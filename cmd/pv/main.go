package main

import (
	"fmt"
	"os"
	"time"

	"pv-go/internal/app"
	"pv-go/internal/backup"
	"pv-go/internal/catalog"
	"pv-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Backup").
func newApp(cmd *cobra.Command, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cmd.Context(), cfg, defaults["config_path"], operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "pv",
	Short: "Personal photo backup tool",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Account ID: %s\n", cfg.AccountID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Cache Dir:  %s\n", cfg.CacheDir)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [DIR]",
	Short: "Scan a directory and publish a local catalog snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd, "Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := targetDir(args)
		if err != nil {
			return err
		}

		info, err := a.Scan(cmd.Context(), target, recursive)
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}

		fmt.Printf("Published snapshot %s (v%d, %d photo(s))\n",
			short(info.SnapshotHash), info.Version, info.EntryCount)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status [DIR]",
	Short: "View per-file backup status",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd, "GetStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := targetDir(args)
		if err != nil {
			return err
		}

		statuses, err := a.Status(cmd.Context(), target, recursive)
		if err != nil {
			return err
		}

		if len(statuses) == 0 {
			fmt.Println("No photos found.")
			return nil
		}

		for _, s := range statuses {
			indicator := "? "
			switch s.BackupStatus {
			case catalog.BackupUploaded:
				indicator = "U "
			case catalog.BackupUploading:
				indicator = "u "
			case catalog.BackupFailed:
				indicator = "F "
			case catalog.BackupNotUploaded:
				indicator = "- "
			}
			star := " "
			if s.IsStarred {
				star = "*"
			}
			fmt.Printf("%s%s %s  %s\n", indicator, star, short(s.ContentHash), s.Path)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup [DIR]",
	Short: "Upload photos to cloud storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		starred, _ := cmd.Flags().GetBool("starred")

		a, err := newApp(cmd, "Backup")
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := targetDir(args)
		if err != nil {
			return err
		}

		results, err := a.Backup(cmd.Context(), target, recursive, starred)
		if err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}

		var completed, skipped, failed int
		for _, res := range results {
			switch res.Status {
			case backup.StatusCompleted:
				completed++
			case backup.StatusSkipped:
				skipped++
			case backup.StatusFailed:
				failed++
			}
		}
		fmt.Printf("Uploaded %d, deduplicated %d, failed %d\n", completed, skipped, failed)
		if failed > 0 {
			for path, res := range results {
				if res.Status == backup.StatusFailed {
					fmt.Printf("  failed: %s: %v\n", path, res.Err)
				}
			}
		}
		return nil
	},
}

// star commands
var starCmd = &cobra.Command{
	Use:   "star FILE...",
	Short: "Star photos so `backup --starred` selects them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Star")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetStarred(cmd.Context(), args, true); err != nil {
			return err
		}
		fmt.Printf("Starred %d photo(s)\n", len(args))
		return nil
	},
}

var unstarCmd = &cobra.Command{
	Use:   "unstar FILE...",
	Short: "Remove the star from photos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Unstar")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetStarred(cmd.Context(), args, false); err != nil {
			return err
		}
		fmt.Printf("Unstarred %d photo(s)\n", len(args))
		return nil
	},
}

// catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect catalogs",
}

var catalogInfoCmd = &cobra.Command{
	Use:   "info [DIR]",
	Short: "Show local and cloud snapshot state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetCatalogInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		target, err := targetDir(args)
		if err != nil {
			return err
		}

		local, remote, err := a.CatalogInfo(cmd.Context(), target)
		if err != nil {
			return err
		}

		fmt.Printf("Local:  %s  v%d  %d photo(s)\n", short(local.SnapshotHash), local.Version, local.EntryCount)
		if remote.SnapshotHash == "" {
			fmt.Println("Cloud:  (none)")
		} else {
			fmt.Printf("Cloud:  %s  v%d  %d photo(s)\n", short(remote.SnapshotHash), remote.Version, remote.EntryCount)
		}
		return nil
	},
}

// login command
var loginCmd = &cobra.Command{
	Use:   "login PROVIDER EXTERNAL_ID",
	Short: "Sign in and resolve the internal account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Login")
		if err != nil {
			return err
		}
		defer a.Close()

		accountID, err := a.Login(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		fmt.Printf("Signed in. Account ID: %s\n", accountID)
		return nil
	},
}

// archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage archived photos",
}

var archiveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View retrieval requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetArchiveStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		requests, err := a.RetrievalRequests()
		if err != nil {
			return err
		}

		if len(requests) == 0 {
			fmt.Println("No retrieval requests.")
			return nil
		}

		for _, req := range requests {
			ready, total, err := a.ThawProgress(req.ID)
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  %d of %d ready  %d credit(s)  %s\n",
				req.ID,
				req.CreatedAt.Format("2006-01-02 15:04:05"),
				ready, total,
				req.Credits,
				formatBytes(req.TotalBytes),
			)
		}
		return nil
	},
}

var archiveThawCmd = &cobra.Command{
	Use:   "thaw HASH...",
	Short: "Request retrieval of archived photos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RequestThaw")
		if err != nil {
			return err
		}
		defer a.Close()

		req, err := a.RequestThaw(args)
		if err != nil {
			return fmt.Errorf("thaw request failed: %w", err)
		}

		fmt.Printf("Retrieval %s submitted: %d photo(s), %s, %d credit(s) charged\n",
			req.ID, len(args), formatBytes(req.TotalBytes), req.Credits)
		return nil
	},
}

var archiveTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance archive transitions and poll restore progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ArchiveTick")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ArchiveTick(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Archive lifecycle advanced.")
		return nil
	},
}

// credits command
var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "View remaining retrieval credits",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GetCredits")
		if err != nil {
			return err
		}
		defer a.Close()

		credits, err := a.Credits()
		if err != nil {
			return err
		}
		fmt.Printf("%d credit(s) available\n", credits)
		return nil
	},
}

var creditsAddCmd = &cobra.Command{
	Use:   "add AMOUNT",
	Short: "Grant retrieval credits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var amount int64
		if _, err := fmt.Sscanf(args[0], "%d", &amount); err != nil || amount <= 0 {
			return fmt.Errorf("invalid credit amount: %s", args[0])
		}

		a, err := newApp(cmd, "AddCredits")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.AddCredits(amount); err != nil {
			return err
		}
		fmt.Printf("Added %d credit(s)\n", amount)
		return nil
	},
}

// account command
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage the account",
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Schedule account deletion",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ScheduleDeletion")
		if err != nil {
			return err
		}
		defer a.Close()

		marker, err := a.ScheduleDeletion(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Account deletion scheduled for %s. Run `pv account cancel` to undo.\n",
			marker.DeleteAfter.Format("2006-01-02"))
		return nil
	},
}

var accountCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending account deletion",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CancelDeletion")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.CancelDeletion(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Account deletion canceled.")
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt.Valid {
				d := op.FinishedAt.Time.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-18s  %s  %-10s  %s\n",
				op.ID,
				op.Name,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

func targetDir(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return cwd, nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatBytes(n int64) string {
	switch {
	case n >= 1000*1000*1000:
		return fmt.Sprintf("%.1fGB", float64(n)/1e9)
	case n >= 1000*1000:
		return fmt.Sprintf("%.1fMB", float64(n)/1e6)
	case n >= 1000:
		return fmt.Sprintf("%.1fKB", float64(n)/1e3)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	catalogCmd.AddCommand(catalogInfoCmd)

	archiveCmd.AddCommand(archiveStatusCmd)
	archiveCmd.AddCommand(archiveThawCmd)
	archiveCmd.AddCommand(archiveTickCmd)

	creditsCmd.AddCommand(creditsAddCmd)

	accountCmd.AddCommand(accountDeleteCmd)
	accountCmd.AddCommand(accountCancelCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	backupCmd.Flags().Bool("starred", false, "Only upload starred photos")
	rootCmd.AddCommand(starCmd)
	rootCmd.AddCommand(unstarCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(creditsCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
