package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/phivault/pkg/config"
	"github.com/doodlesbykumbi/phivault/pkg/records"
	"github.com/doodlesbykumbi/phivault/pkg/server"
)

// maintainCmd represents the maintain command
var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the periodic maintenance sweep",
	Long: `Run the periodic maintenance sweep.

Every maintenance_interval_seconds the sweep expires lapsed consents and
reports the data keys that expire within rotation_horizon_days. Metrics and
a health check are served on metrics_address. The config file is watched and
a changed interval takes effect on the next tick.

To run requires DATABASE_URL and the data key (PHIVAULT_DATA_KEY, or Vault
when data_key_source is vault).

Example:
  phivaultctl maintain
  phivaultctl maintain --once`,
	Run: func(cmd *cobra.Command, args []string) {
		caller, _ := cmd.Flags().GetString("caller")
		once, _ := cmd.Flags().GetBool("once")

		if err := runMaintenance(caller, once); err != nil {
			fmt.Fprintf(os.Stderr, "Maintenance failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)
	maintainCmd.Flags().String("caller", "phivault-maintenance", "principal recorded on sweep audit entries")
	maintainCmd.Flags().Bool("once", false, "run a single sweep and exit")
}

func runMaintenance(caller string, once bool) error {
	if err := config.Reload(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	rt, err := bootstrap(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if once {
		return sweep(ctx, rt.Contract, caller)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	srv := server.NewServer(cfg.MetricsAddress, rt.Backend, rt.Metrics.Handler())
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Serving /metrics and /healthz at %s...", cfg.MetricsAddress)
		if err := srv.Start(ctx); err != nil {
			log.Printf("ops server: %v", err)
			stop()
		}
	}()

	intervals := make(chan time.Duration, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := config.Watch(ctx, func(c *config.PhivaultConfig) {
			select {
			case intervals <- c.MaintenanceInterval():
			default:
			}
		})
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		}
	}()

	interval := cfg.MaintenanceInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := sweep(ctx, rt.Contract, caller); err != nil {
		log.Printf("sweep failed: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			log.Println("Stopping maintenance")
			return nil
		case next := <-intervals:
			if next != interval {
				log.Printf("maintenance interval changed from %s to %s", interval, next)
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			if err := sweep(ctx, rt.Contract, caller); err != nil {
				log.Printf("sweep failed: %v", err)
			}
		}
	}
}

func sweep(ctx context.Context, c *records.Contract, caller string) error {
	report, err := c.Maintain(ctx, caller, 0)
	if err != nil {
		return err
	}
	log.Printf("sweep: %d consents expired, %d keys due for rotation", len(report.Expired), report.KeysDue())
	for custodian, due := range report.Due {
		for _, k := range due {
			log.Printf("sweep: key %s (custodian %s) expires %s", k.KeyID, custodian, k.ExpiresAt.Format(time.RFC3339))
		}
	}
	return nil
}
