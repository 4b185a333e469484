/*
main.go - scanctl, the on-device scan agent

PURPOSE:
  Command-line client for the scan sync pipeline: captures scans into the
  on-device durable queue and drains them toward the server. Everything
  works offline except `sync` and `watch`; captures are durable the moment
  the command returns.

COMMANDS:
  scanctl capture --bus B12 --type ingress [--route R3] [--lat .. --lng ..]
  scanctl sync                 Drain the queue once
  scanctl watch [--interval]   Periodic sync loop until interrupted
  scanctl status               Pending count and recent confirmed history

CONFIGURATION (flag, falling back to environment / .env):
  --db      / SCANCTL_DB      Queue database path (default: scanctl.db)
  --server  / SCANCTL_SERVER  Server base URL (default: http://localhost:8080)
  --token   / SCANCTL_TOKEN   Bearer credential; sync fails fast without one

SEE ALSO:
  - client/sync.go: The engine behind sync/watch
  - store/sqlite/queue.go: The durable queue behind capture
*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/campuslink/scan-engine/client"
	"github.com/campuslink/scan-engine/scan"
	"github.com/campuslink/scan-engine/store/sqlite"
)

var (
	flagDB     string
	flagServer string
	flagToken  string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "scanctl",
		Short:         "On-device agent for offline scan capture and sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagDB, "db", envStr("SCANCTL_DB", "scanctl.db"), "queue database path")
	root.PersistentFlags().StringVar(&flagServer, "server", envStr("SCANCTL_SERVER", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().StringVar(&flagToken, "token", envStr("SCANCTL_TOKEN", ""), "bearer credential")

	root.AddCommand(captureCmd(), syncCmd(), watchCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore opens the on-device queue/history database.
func openStore() (*sqlite.ClientStore, error) {
	store, err := sqlite.OpenClient(flagDB)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	return store, nil
}

func newEngine(store *sqlite.ClientStore) *client.SyncEngine {
	engine := client.NewSyncEngine(
		store,
		client.NewHTTPTransport(flagServer),
		client.StaticCredentials(flagToken),
	)
	engine.History = store
	return engine
}

// =============================================================================
// COMMANDS
// =============================================================================

func captureCmd() *cobra.Command {
	var (
		bus, route, eventType string
		lat, lng              float64
		device                string
	)

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a scan into the durable queue (works offline)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			in := client.CaptureInput{
				BusID:     scan.BusID(bus),
				RouteID:   scan.RouteID(route),
				EventType: scan.EventType(eventType),
			}
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng") {
				coords := scan.NewCoordinates(lat, lng)
				in.Geolocation = &coords
			}
			if device != "" {
				if !json.Valid([]byte(device)) {
					return fmt.Errorf("--device must be valid JSON")
				}
				in.DeviceInfo = json.RawMessage(device)
			}

			recorder := client.NewRecorder(store)
			clientID, err := recorder.Capture(cmd.Context(), in)
			if err != nil {
				return err
			}

			count, _ := store.Count(cmd.Context())
			fmt.Printf("Queued scan %s (%d pending)\n", clientID, count)
			return nil
		},
	}

	cmd.Flags().StringVar(&bus, "bus", "", "bus id (required)")
	cmd.Flags().StringVar(&route, "route", "", "route id")
	cmd.Flags().StringVar(&eventType, "type", "ingress", "event type: ingress or egress")
	cmd.Flags().Float64Var(&lat, "lat", 0, "capture latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "capture longitude")
	cmd.Flags().StringVar(&device, "device", "", "opaque device metadata (JSON)")
	_ = cmd.MarkFlagRequired("bus")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the queue toward the server once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			outcome, err := newEngine(store).SyncIfPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed, scans remain queued: %w", err)
			}
			printOutcome(outcome)
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync periodically until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			engine := newEngine(store)
			fmt.Printf("Watching queue, syncing every %s (Ctrl-C to stop)\n", interval)

			// First pass immediately; the loop takes over from there.
			engine.Kick()
			engine.Run(ctx, interval, func(err error) {
				fmt.Fprintln(os.Stderr, "sync:", err)
			})
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 60*time.Second, "sync interval")
	return cmd
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending count and recent confirmed scans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Pending: %d\n", count)

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return nil
			}

			fmt.Println("Recent confirmed:")
			for _, e := range entries {
				fmt.Printf("  %s  %-8s %-7s bus=%s server=%s\n",
					e.Event.LocalTimestamp.Local().Format(time.RFC3339),
					e.Event.EventType, e.Status, e.Event.BusID, e.ServerID)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "history entries to show")
	return cmd
}

func printOutcome(o client.Outcome) {
	switch {
	case o.Skipped:
		fmt.Println("Sync already in progress, skipped")
	case o.Attempted == 0:
		fmt.Println("Nothing to sync")
	default:
		fmt.Printf("Synced %d, conflicts %d, errors %d (%d remaining)\n",
			o.Synced, o.Conflicts, o.Errors, o.Remaining)
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
