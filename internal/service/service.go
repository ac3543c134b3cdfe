// Package service implements the download service (spec §4.5, C5): the
// mediator between the queue and the download engine. It exposes
// list_op/download_op/create_session/clean/ask_download as plain
// methods and wait_for_messages as a queue consumer loop, mirroring the
// teacher's control.go split between "one operation" and "the loop that
// drives many of them" (golang.org/x/sync/errgroup for the embedded
// local worker pool).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/biomaj/biomaj-download/internal/download"
	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/queue"
	"github.com/biomaj/biomaj-download/internal/session"
)

// Callback is invoked after a successful download_op with the bank name
// and the enriched file list (spec §4.5: "on_download_callback").
type Callback func(bank string, files []model.RemoteFile)

// Service mediates between a queue consumer (or an embedded local
// caller) and the download engine, tracking progress in the session
// store (spec §4.5).
type Service struct {
	Sessions *session.Store
	Queue    *queue.Queue // nil in pure local/embedded mode

	OnDownload Callback
}

// New constructs a Service. q may be nil when the caller only ever
// drives list_op/download_op locally (spec §4.7 "Local mode").
func New(sessions *session.Store, q *queue.Queue) *Service {
	return &Service{Sessions: sessions, Queue: q}
}

// CreateSession generates a session id and marks it alive (spec §4.5
// create_session).
func (s *Service) CreateSession(ctx context.Context, bank string) (string, error) {
	return s.Sessions.CreateSession(ctx, bank)
}

// Clean deletes every key belonging to the session (spec §4.5 clean).
func (s *Service) Clean(ctx context.Context, bank, sid string) error {
	return s.Sessions.Clean(ctx, bank, sid)
}

// AskDownload publishes job with persistent delivery (spec §4.5
// ask_download). It requires remote mode (a configured Queue).
func (s *Service) AskDownload(ctx context.Context, job model.DownloadJob) error {
	if s.Queue == nil {
		return errors.New("service: ask_download requires remote mode (no queue configured)")
	}
	return s.Queue.Publish(ctx, model.Operation{Kind: model.OpDownload, Download: job})
}

// ListOp builds a downloader for job, lists and matches job.RemoteFile.Matches,
// and serializes the result under the session's "files" key (spec §4.5
// list_op). Progress is incremented exactly once regardless of outcome.
func (s *Service) ListOp(ctx context.Context, job model.DownloadJob) (err error) {
	defer func() { s.finish(ctx, job, err) }()

	alive, aliveErr := s.Sessions.Alive(ctx, job.Bank, job.Session)
	if aliveErr != nil {
		return aliveErr
	}
	if !alive {
		return nil
	}

	d, err := download.New(job.RemoteFile)
	if err != nil {
		return err
	}
	defer d.Close()
	configureDownloader(d, job)

	files, dirs, err := d.List(ctx, "")
	if err != nil {
		return err
	}
	matched, err := download.Match(ctx, "", job.RemoteFile.Matches, files, dirs, func(ctx context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
		return d.List(ctx, subdir)
	})
	if err != nil {
		return err
	}
	return s.Sessions.SetFiles(ctx, job.Bank, job.Session, matched)
}

// DownloadOp builds a downloader for job, downloads its file list,
// enriches each result with local stat metadata and invokes the
// optional callback (spec §4.5 download_op). Progress is incremented
// exactly once per job.
func (s *Service) DownloadOp(ctx context.Context, job model.DownloadJob) (err error) {
	defer func() { s.finish(ctx, job, err) }()

	alive, aliveErr := s.Sessions.Alive(ctx, job.Bank, job.Session)
	if aliveErr != nil {
		return aliveErr
	}
	if !alive {
		return nil
	}

	d, err := download.New(job.RemoteFile)
	if err != nil {
		return err
	}
	defer d.Close()
	configureDownloader(d, job)
	d.SetFilesToDownload(job.RemoteFile.Files)

	keepDirs := job.BoolOption("keep_dirs", false)
	results, err := d.Download(ctx, job.LocalDir, keepDirs)
	if err != nil {
		return err
	}
	for i := range results {
		enrichWithLocalStat(job.LocalDir, &results[i])
	}
	if s.OnDownload != nil {
		s.OnDownload(job.Bank, results)
	}
	return nil
}

// finish records the list_op/download_op outcome in the session store:
// on error, bump the error counter and push a message; in all cases,
// increment progress exactly once (spec §4.5 state machine).
func (s *Service) finish(ctx context.Context, job model.DownloadJob, opErr error) {
	if opErr != nil {
		msg := fmt.Sprintf("%s: %s/%s: %v", job.RemoteFile.Protocol, job.Bank, job.RemoteFile.RemoteDir, opErr)
		if err := s.Sessions.IncrError(ctx, job.Bank, job.Session, msg); err != nil {
			slog.Error("service: failed to record error", "bank", job.Bank, "session", job.Session, "error", err)
		}
	}
	if _, err := s.Sessions.IncrProgress(ctx, job.Bank, job.Session); err != nil {
		slog.Error("service: failed to increment progress", "bank", job.Bank, "session", job.Session, "error", err)
	}
}

func configureDownloader(d download.Downloader, job model.DownloadJob) {
	if job.RemoteFile.Credentials != "" {
		d.SetCredentials(job.RemoteFile.Credentials)
	}
	if job.Proxy != nil {
		d.SetProxy(job.Proxy.Proxy, job.Proxy.ProxyAuth)
	}
	if job.TimeoutDownload > 0 {
		d.SetTimeout(time.Duration(job.TimeoutDownload) * time.Second)
	}
	if job.RemoteFile.Param != nil {
		d.SetParam(job.RemoteFile.Param)
	}
	if job.HTTPMethod != "" {
		d.SetMethod(job.HTTPMethod)
	}
	if job.RemoteFile.SaveAs != "" {
		d.SetSaveAs(job.RemoteFile.SaveAs)
	}
	if job.Options != nil {
		d.SetOptions(job.Options)
	}
}

// enrichWithLocalStat fills in permissions/owner/group/size from the
// file now sitting on disk (spec §4.5 download_op: "enrich each
// returned RemoteFile with local stat metadata").
func enrichWithLocalStat(localDir string, f *model.RemoteFile) {
	path := localDir + string(os.PathSeparator) + f.SaveAs
	fi, err := os.Stat(path)
	if err != nil {
		return
	}
	f.Permissions = fi.Mode().Perm().String()
	f.Size = uint64(fi.Size())
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		f.Owner = fmt.Sprintf("%d", stat.Uid)
		f.Group = fmt.Sprintf("%d", stat.Gid)
	}
}

// WaitForMessages runs the consumer loop of spec §4.5: decode each
// delivery, dispatch to ListOp/DownloadOp by operation kind, ack
// regardless of outcome (handled by queue.Queue.Consume).
func (s *Service) WaitForMessages(ctx context.Context) error {
	if s.Queue == nil {
		return errors.New("service: wait_for_messages requires remote mode (no queue configured)")
	}
	return s.Queue.Consume(ctx, func(ctx context.Context, op model.Operation) error {
		switch op.Kind {
		case model.OpList:
			return s.ListOp(ctx, op.Download)
		case model.OpDownload:
			return s.DownloadOp(ctx, op.Download)
		default:
			slog.Error("service: unhandled operation kind", "kind", op.Kind)
			return errors.Newf("service: unhandled operation kind %q", op.Kind)
		}
	})
}

// LocalWorkerPool drains jobs from a channel using a fixed-size worker
// group, invoking DownloadOp synchronously on each (spec §4.7 Local
// mode: "a fixed-size worker group (default 5)"). It returns true iff
// any worker reported an error.
func LocalWorkerPool(ctx context.Context, s *Service, jobs <-chan model.DownloadJob, size int) (bool, error) {
	if size <= 0 {
		size = 5
	}
	if size > runtime.NumCPU()*4 {
		size = runtime.NumCPU() * 4
	}
	var anyErr atomic.Bool
	group, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		group.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					if err := s.DownloadOp(gctx, job); err != nil {
						anyErr.Store(true)
						slog.Warn("service: local download failed", "bank", job.Bank, "error", err)
					}
				}
			}
		})
	}
	if err := group.Wait(); err != nil {
		return anyErr.Load(), err
	}
	return anyErr.Load(), nil
}
