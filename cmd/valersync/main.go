package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"valersync/internal/config"
	"valersync/internal/database"
	"valersync/internal/runner"
	"valersync/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "valersync",
	Short:   "Portal authorization scraper",
	Long:    "Valersync scrapes patient authorization records from the provider portal and keeps a local synced copy with a manual-edit workflow.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("valersync", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/valersync/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the portal URLs and credentials.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		total, err := db.CountAuthorizations()
		if err != nil {
			return fmt.Errorf("counting records: %w", err)
		}
		runs, err := db.ListRuns()
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Authorizations:")
		fmt.Printf("  Total records: %d\n", total)
		fmt.Println("\nScrape runs:")
		fmt.Printf("  Total runs: %d\n", len(runs))
		if len(runs) > 0 {
			latest := runs[0]
			fmt.Printf("  Last run: %s (%s)\n", latest.StartedAt, latest.Status)
			if latest.CompletedAt != nil {
				fmt.Printf("  Completed: %s\n", *latest.CompletedAt)
			}
			if latest.DurationSeconds != nil {
				fmt.Printf("  Duration: %.1fs\n", *latest.DurationSeconds)
			}
			fmt.Printf("  Records: %d found, %d saved\n", latest.RecordsFound, latest.RecordsSaved)
			if latest.ErrorMessage != nil {
				fmt.Printf("  Error: %s\n", *latest.ErrorMessage)
			}
		}
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scrape: log in to the portal, extract records, persist them",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDBWithRetry()
		if err != nil {
			return err
		}
		defer db.Close()

		r := runner.New(db, cfg)
		res, err := r.Run(cfg.Portal.Username, cfg.Portal.Password, func(msg string) {
			fmt.Println(msg)
		})
		if err != nil {
			return fmt.Errorf("scrape failed: %w", err)
		}

		fmt.Println("\nScrape complete:")
		fmt.Printf("  Records found: %d\n", res.RecordsFound)
		fmt.Printf("  Records saved: %d\n", res.RecordsSaved)
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDBWithRetry()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		r := runner.New(db, cfg)
		stop := make(chan struct{})
		defer close(stop)
		r.StartSweeper(10*time.Minute, time.Hour, stop)

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, r, cfg, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "valersync.db")
	return database.Open(dbPath)
}

// openDBWithRetry waits for the database to become available before a scrape
// or the server starts, retrying for up to a minute.
func openDBWithRetry() (*database.DB, error) {
	const (
		maxRetries = 30
		retryDelay = 2 * time.Second
	)
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		db, err := openDB()
		if err == nil {
			if err = db.Ping(); err == nil {
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		log.Printf("database not ready (attempt %d/%d): %v", i+1, maxRetries, lastErr)
		time.Sleep(retryDelay)
	}
	return nil, fmt.Errorf("database unavailable after %d attempts: %w", maxRetries, lastErr)
}
