package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"vessel-gcs/internal/api"
	"vessel-gcs/internal/archive"
	"vessel-gcs/internal/config"
	"vessel-gcs/internal/models"
	"vessel-gcs/internal/relay"
	"vessel-gcs/internal/store"

	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	archivePath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vessel-gcs",
		Short: "Ground control station for a small autonomous surface vessel",
		Long: `Ground control station backend: serves live telemetry and mission
control to the browser front end, relays operator commands to the onboard
process, and archives telemetry runs for offline analysis.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&archivePath, "archive-db", "telemetry_archive.db", "Path to the sqlite archive")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(sendCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func buildRelay(cfg *config.Config) relay.Relay {
	if cfg.Relay.Strategy == config.StrategyExec {
		return relay.NewExecRelay(cfg.Relay.Command, cfg.Relay.Timeout.Std())
	}
	return relay.NewHTTPRelay(cfg.Relay.URL, cfg.Relay.Timeout.Std())
}

// serveCmd runs the ground-station HTTP server.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the ground station server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			st := store.New(cfg.Data.TelemetryFile, cfg.Data.WaypointsFile, cfg.Data.StatusFile)
			server := api.NewServer(cfg, st, buildRelay(cfg), logger)

			logger.Info("ground station listening",
				"addr", cfg.Server.Listen,
				"relay", cfg.Relay.Strategy,
				"telemetry", cfg.Data.TelemetryFile,
				"waypoints", cfg.Data.WaypointsFile)
			return http.ListenAndServe(cfg.Server.Listen, server.Handler())
		},
	}
}

// archiveCmd ingests telemetry CSV logs into the sqlite archive.
func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive [file...]",
		Short: "Archive telemetry CSV logs into sqlite",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := archive.Open(archivePath)
			if err != nil {
				return err
			}
			defer db.Close()

			total := int64(0)
			for _, file := range args {
				st := store.New(file, "", "")
				records, err := st.ReadTelemetry()
				if err != nil {
					logger.Error("skipping file", "file", file, "error", err)
					continue
				}
				start := time.Now()
				count, err := db.InsertBatch(records)
				if err != nil {
					return fmt.Errorf("archiving %s: %w", file, err)
				}
				logger.Info("archived", "file", file, "records", count, "took", time.Since(start))
				total += count
			}
			fmt.Printf("Archived %d records into %s\n", total, archivePath)
			return nil
		},
	}
}

// queryCmd reads archived telemetry back.
func queryCmd() *cobra.Command {
	var mode string
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the telemetry archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := archive.Open(archivePath)
			if err != nil {
				return err
			}
			defer db.Close()

			results, err := db.Query(archive.QueryParams{Mode: mode, Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("query error: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			fmt.Printf("Found %d records\n\n", len(results))
			for _, r := range results {
				fmt.Printf("[%s] %.6f,%.6f | alt %s | batt %s | mode %s\n",
					r.Timestamp, r.Latitude, r.Longitude, r.Altitude, r.Battery, r.Mode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Filter by vehicle mode")
	cmd.Flags().IntVarP(&limit, "limit", "l", 100, "Maximum records to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Records to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

// statsCmd summarizes the archive.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show telemetry archive statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := archive.Open(archivePath)
			if err != nil {
				return err
			}
			defer db.Close()

			summary, err := db.Summarize()
			if err != nil {
				return fmt.Errorf("error summarizing archive: %w", err)
			}

			fmt.Println("Telemetry Archive Statistics")
			fmt.Println("============================")
			fmt.Printf("  Total Records:  %d\n", summary.TotalRecords)
			fmt.Printf("  First Sample:   %s\n", summary.FirstTimestamp)
			fmt.Printf("  Last Sample:    %s\n", summary.LastTimestamp)
			fmt.Printf("  Archive:        %s\n", archivePath)
			for mode, count := range summary.ModeCounts {
				fmt.Printf("  Mode %-10s %d\n", mode+":", count)
			}
			return nil
		},
	}
}

// sendCmd fires one command at the onboard relay, for bench-testing the
// link without the front end.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <type> [payload]",
		Short: "Send a single command to the onboard relay",
		Long: `Send a single command token to the onboard relay. Type is one of
MAN, WP or MSSN; MAN and MSSN require a payload (e.g. "send MSSN ARM",
"send MAN FORWARD", "send WP").`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			command := models.Command{Type: models.CommandType(args[0])}
			if len(args) > 1 {
				command.Payload = args[1]
			}

			start := time.Now()
			if err := buildRelay(cfg).Send(context.Background(), command); err != nil {
				return err
			}
			fmt.Printf("Delivered %s %s in %v\n", command.Type, command.Payload, time.Since(start))
			return nil
		},
	}
}
