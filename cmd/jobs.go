package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-orders/app/service"
	"github.com/vibast-solutions/ms-go-orders/config"
)

var (
	workerMode bool
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Run outbox related commands",
}

var outboxDispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Deliver pending timeline, audit, and notification tasks",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"outbox_dispatch",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.OutboxDispatchInterval },
			func(s *service.OrderService, ctx context.Context) error {
				return s.RunDispatchOutboxBatch(ctx)
			},
		)
	},
}

var escrowCmd = &cobra.Command{
	Use:   "escrow",
	Short: "Run escrow related commands",
}

var escrowReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release escrowed funds for orders past the protection window",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"escrow_release",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.EscrowReleaseInterval },
			func(s *service.OrderService, ctx context.Context) error {
				return s.RunReleaseEscrowBatch(ctx)
			},
		)
	},
}

var reservationsCmd = &cobra.Command{
	Use:   "reservations",
	Short: "Run listing reservation related commands",
}

var reservationsExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Cancel stale awaiting-payment orders and free their listings",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reservations_expire",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ExpireReservationsInterval },
			func(s *service.OrderService, ctx context.Context) error {
				return s.RunExpireReservationsBatch(ctx)
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(escrowCmd)
	rootCmd.AddCommand(reservationsCmd)
	outboxCmd.AddCommand(outboxDispatchCmd)
	escrowCmd.AddCommand(escrowReleaseCmd)
	reservationsCmd.AddCommand(reservationsExpireCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *service.OrderService, ctx context.Context) error,
) {
	cfg, orderService, cleanup := mustCreateOrderService()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), orderService, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(orderService, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	orderService *service.OrderService,
	fn func(s *service.OrderService, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runJob(name, func() error { return fn(orderService, ctx) })

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-quit:
			logrus.WithField("job", name).Info("Worker shutdown requested")
			return
		case <-ticker.C:
			runJob(name, func() error { return fn(orderService, ctx) })
		}
	}
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
