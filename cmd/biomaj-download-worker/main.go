// Package main implements the biomaj-download-worker command: the
// queue consumer process driving the download service (spec §4.5 C5,
// bin/biomaj_download_consumer.py). Grounded on cmd/mirrorctl/main.go's
// cobra root-command + version-command layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	consulapi "github.com/hashicorp/consul/api"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/biomaj/biomaj-download/internal/config"
	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/queue"
	"github.com/biomaj/biomaj-download/internal/service"
	"github.com/biomaj/biomaj-download/internal/session"
	"github.com/biomaj/biomaj-download/internal/supervisor"
)

var (
	version = "dev"
	commit  = "unknown"
)

const healthCheckTimeout = 2 * time.Second

var rootCmd = &cobra.Command{
	Use:   "biomaj-download-worker",
	Short: "Consume download jobs from the biomajdownload queue",
	Long: `biomaj-download-worker is the queue consumer process behind the download
service: it dequeues LIST/DOWNLOAD jobs, invokes the appropriate Downloader,
and tracks progress in the session store.`,
	RunE: runWorker,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("biomaj-download-worker %s\n", version)
		fmt.Printf("commit: %s\n", commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "worker: load config")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()

	q, err := queue.Dial(cfg.AMQP.URL)
	if err != nil {
		return errors.Wrap(err, "worker: connect to queue")
	}
	defer q.Close()

	sessions := session.New(rdb, cfg.Redis.Prefix)
	svc := service.New(sessions, q)

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	metrics := supervisor.NewMetrics(nil)
	svc.OnDownload = func(bank string, files []model.RemoteFile) {
		kind := "download"
		for _, f := range files {
			metrics.Observe(supervisor.MetricSample{
				Bank: bank, Host: host, Kind: kind,
				Bytes: f.Size, Seconds: f.DownloadTime, Error: f.Error,
			})
		}
	}

	healthCheck := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return rdb.Ping(ctx).Err()
	}
	admin := supervisor.NewServer(healthCheck).WithMetrics(metrics)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return admin.Run(gctx, cfg.HTTP.Addr) })
	group.Go(func() error { return svc.WaitForMessages(gctx) })

	if cfg.Consul.Enabled {
		consulClient, cerr := consulapi.NewClient(&consulapi.Config{Address: cfg.Consul.Addr})
		if cerr != nil {
			return errors.Wrap(cerr, "worker: consul client")
		}
		reg := supervisor.Registration{
			ServiceID:      "biomaj-download-worker",
			ServiceName:    "biomaj-download-worker",
			Address:        "localhost",
			HealthCheckURL: "http://localhost" + cfg.HTTP.Addr + "/api/download",
		}
		if err := supervisor.Register(consulClient, reg); err != nil {
			slog.Warn("worker: consul registration failed", "error", err)
		} else {
			defer func() {
				if err := supervisor.Deregister(consulClient, reg.ServiceID); err != nil {
					slog.Warn("worker: consul deregistration failed", "error", err)
				}
			}()
		}
	}

	slog.Info("biomaj-download-worker started", "queue", queue.QueueName, "http_addr", cfg.HTTP.Addr)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
