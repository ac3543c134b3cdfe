// Package client implements the download client's batching layer (spec
// §4.7, C7): building per-file DownloadJob messages, submitting them
// under an optional in-flight rate limit (remote mode) or to a bounded
// local worker pool (local mode), polling progress and honoring
// cancellation. Grounded on the teacher's errgroup-driven control.go for
// the local worker pool and on github.com/cheggaaa/pb/v3 (as used by
// bodaay-HuggingFaceModelDownloader's download progress bars) for the
// 1%-boundary progress reporting spec §4.7 requires.
package client

import (
	"context"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cockroachdb/errors"

	"github.com/biomaj/biomaj-download/internal/download"
	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/queue"
	"github.com/biomaj/biomaj-download/internal/service"
	"github.com/biomaj/biomaj-download/internal/session"
)

// pollInterval is how often wait_for_download polls progress/error
// counters (spec §4.7: "every ~10 s").
const pollInterval = 10 * time.Second

// defaultLocalWorkers is the local-mode worker-group size (spec §4.7
// Local mode: "a fixed-size worker group (default 5)").
const defaultLocalWorkers = 5

// Client is the download client described in spec §4.7. Exactly one of
// Queue (remote mode) or Service (local/embedded mode) is normally used
// per batch, matching the source's two operating modes.
type Client struct {
	Sessions *session.Store
	Queue    *queue.Queue // remote mode; DownloadRemoteFiles fails when nil
	Service  *service.Service

	RateLimit    int // remote mode in-flight cap; <=0 disables the cap
	LocalWorkers int // local mode worker-group size; <=0 defaults to 5

	ShowProgress bool // render a cheggaaa/pb progress bar while polling
}

// ErrCanceled is returned by WaitForDownload when the client observes
// the session's cancel flag (spec §7: "Canceled ... surfaced
// immediately").
var ErrCanceled = errors.New("client: canceled by action:cancel flag")

// batch tracks one in-flight remote submission: jobs already published
// and jobs still pending behind the rate limit.
type batch struct {
	bank, session string
	submitted     int
	pending       []model.DownloadJob
}

// DownloadRemoteFiles builds one DOWNLOAD job per matched file and
// either publishes it immediately or appends it to the pending pool
// when RateLimit is set (spec §4.7 download_remote_files). It returns a
// handle to pass to WaitForDownload along with the expected file count.
func (c *Client) DownloadRemoteFiles(ctx context.Context, bank, sid string, jobs []model.DownloadJob) (expected int, b *batch, err error) {
	if c.Queue == nil {
		return 0, nil, errors.New("client: remote mode requires a configured Queue")
	}
	b = &batch{bank: bank, session: sid}
	limit := c.RateLimit
	for _, job := range jobs {
		if limit > 0 && b.submitted >= limit {
			b.pending = append(b.pending, job)
			continue
		}
		if err := c.Queue.Publish(ctx, model.Operation{Kind: model.OpDownload, Download: job}); err != nil {
			return 0, nil, err
		}
		b.submitted++
	}
	return len(jobs), b, nil
}

// WaitForDownload polls progress/error counters until they reach
// expected, submitting more jobs from the pending pool as earlier ones
// complete (spec §4.7 wait_for_download). It returns true iff at least
// one error occurred.
func (c *Client) WaitForDownload(ctx context.Context, expected int, b *batch) (hadError bool, err error) {
	var bar *pb.ProgressBar
	lastPercent := -1
	if c.ShowProgress && expected > 0 {
		bar = pb.New(expected)
		bar.Start()
		defer bar.Finish()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return hadError, ctx.Err()
		case <-ticker.C:
		}

		canceled, cerr := c.Sessions.ConsumeCancel(ctx, b.bank)
		if cerr != nil {
			return hadError, cerr
		}
		if canceled {
			return hadError, ErrCanceled
		}

		progress, errs, perr := c.Sessions.Progress(ctx, b.bank, b.session)
		if perr != nil {
			return hadError, perr
		}
		hadError = errs > 0

		if bar != nil {
			percent := 0
			if expected > 0 {
				percent = int(progress * 100 / int64(expected))
			}
			if percent != lastPercent {
				bar.SetCurrent(progress)
				lastPercent = percent
			}
		}

		if c.RateLimit > 0 {
			for len(b.pending) > 0 && int64(b.submitted)-progress < int64(c.RateLimit) {
				job := b.pending[0]
				b.pending = b.pending[1:]
				if err := c.Queue.Publish(ctx, model.Operation{Kind: model.OpDownload, Download: job}); err != nil {
					return hadError, err
				}
				b.submitted++
			}
		}

		if progress >= int64(expected) {
			return hadError, nil
		}
	}
}

// DownloadLocal runs jobs through a fixed-size local worker pool backed
// by the embedded service (spec §4.7 Local mode), returning true iff any
// worker reported an error.
func (c *Client) DownloadLocal(ctx context.Context, jobs []model.DownloadJob) (bool, error) {
	if c.Service == nil {
		return false, errors.New("client: local mode requires a configured Service")
	}
	size := c.LocalWorkers
	if size <= 0 {
		size = defaultLocalWorkers
	}
	ch := make(chan model.DownloadJob, len(jobs))
	for _, j := range jobs {
		ch <- j
	}
	close(ch)
	return service.LocalWorkerPool(ctx, c.Service, ch, size)
}

// BuildJobs converts a matched file list into one DownloadJob per file,
// copying protocol/server/credentials/remote dir and per-file metadata
// from src (spec §4.7: "constructs one DOWNLOAD job per file").
func BuildJobs(bank, sid, localDir string, src model.RemoteSource, files []model.RemoteFile, method model.HTTPMethod, timeout int, options map[string]string) []model.DownloadJob {
	jobs := make([]model.DownloadJob, 0, len(files))
	for _, f := range files {
		jobSrc := src
		jobSrc.Files = []model.RemoteFile{f}
		jobSrc.Matches = nil
		jobs = append(jobs, model.DownloadJob{
			Bank:            bank,
			Session:         sid,
			LocalDir:        localDir,
			TimeoutDownload: timeout,
			RemoteFile:      jobSrc,
			HTTPMethod:      method,
			Options:         options,
		})
	}
	return jobs
}

// ApplyCopyOrDownload splits files between the local decider (spec §4.4,
// C4) and the jobs that still need a network download, used by the
// client before BuildJobs so hardlinkable files never reach the queue.
func ApplyCopyOrDownload(files, inventory []model.RemoteFile, offlineDir string, checkExists bool) (toCopy, toDownload []model.RemoteFile) {
	return download.DownloadOrCopy(files, inventory, offlineDir, checkExists)
}
