// Package main implements the biomaj-download-client command: a manual
// front-end over the client package (spec §4.7, C7) for ops use —
// create a session, submit a bank's matched files for download, wait for
// completion. Grounded on cmd/mirrorctl/main.go's cobra layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/biomaj/biomaj-download/internal/client"
	"github.com/biomaj/biomaj-download/internal/config"
	"github.com/biomaj/biomaj-download/internal/download"
	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/queue"
	"github.com/biomaj/biomaj-download/internal/service"
	"github.com/biomaj/biomaj-download/internal/session"
)

var (
	version = "dev"

	bank       string
	protocol   string
	server     string
	remoteDir  string
	localDir   string
	matches    []string
	rateLimit  int
	localMode  bool
	showBar    bool
)

var rootCmd = &cobra.Command{
	Use:   "biomaj-download-client",
	Short: "Submit and track a bank download",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("biomaj-download-client %s\n", version)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "List, match and download files for a bank",
	RunE:  runDownload,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVar(&bank, "bank", "", "bank name (required)")
	downloadCmd.Flags().StringVar(&protocol, "protocol", "", "remote protocol (ftp, http, local, ...)")
	downloadCmd.Flags().StringVar(&server, "server", "", "remote server")
	downloadCmd.Flags().StringVar(&remoteDir, "remote-dir", "", "remote directory")
	downloadCmd.Flags().StringVar(&localDir, "local-dir", "", "local destination directory (required)")
	downloadCmd.Flags().StringSliceVar(&matches, "match", nil, "listing match pattern (repeatable)")
	downloadCmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "maximum in-flight remote jobs (0 = unbounded)")
	downloadCmd.Flags().BoolVar(&localMode, "local-mode", false, "run with a local worker pool instead of the queue")
	downloadCmd.Flags().BoolVar(&showBar, "progress", true, "show a progress bar while waiting")
	_ = downloadCmd.MarkFlagRequired("bank")
	_ = downloadCmd.MarkFlagRequired("local-dir")
}

func runDownload(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "client: load config")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer rdb.Close()
	sessions := session.New(rdb, cfg.Redis.Prefix)

	ctx := cmd.Context()
	sid, err := sessions.CreateSession(ctx, bank)
	if err != nil {
		return errors.Wrap(err, "client: create session")
	}
	slog.Info("client: session created", "bank", bank, "session", sid)

	src := model.RemoteSource{
		Protocol:  model.Protocol(protocol),
		Server:    server,
		RemoteDir: remoteDir,
		Matches:   matches,
	}

	d, err := download.New(src)
	if err != nil {
		return errors.Wrap(err, "client: build downloader")
	}
	defer d.Close()

	files, dirs, err := d.List(ctx, "")
	if err != nil {
		return errors.Wrap(err, "client: list")
	}
	matched, err := download.Match(ctx, "", matches, files, dirs, func(ctx context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
		return d.List(ctx, subdir)
	})
	if err != nil {
		return errors.Wrap(err, "client: match")
	}

	jobs := client.BuildJobs(bank, sid, localDir, src, matched, model.MethodGET, 0, nil)

	c := &client.Client{Sessions: sessions, RateLimit: rateLimit, ShowProgress: showBar}

	if localMode {
		svc := service.New(sessions, nil)
		c.Service = svc
		hadError, err := c.DownloadLocal(ctx, jobs)
		if err != nil {
			return errors.Wrap(err, "client: local download")
		}
		return reportOutcome(hadError)
	}

	q, err := queue.Dial(cfg.AMQP.URL)
	if err != nil {
		return errors.Wrap(err, "client: connect to queue")
	}
	defer q.Close()
	c.Queue = q

	expected, batch, err := c.DownloadRemoteFiles(ctx, bank, sid, jobs)
	if err != nil {
		return errors.Wrap(err, "client: submit jobs")
	}
	hadError, err := c.WaitForDownload(ctx, expected, batch)
	if err != nil {
		return errors.Wrap(err, "client: wait for download")
	}
	return reportOutcome(hadError)
}

func reportOutcome(hadError bool) error {
	if hadError {
		slog.Error("client: download finished with errors")
		os.Exit(1)
	}
	slog.Info("client: download finished successfully")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
