// Package download implements the protocol-polymorphic download engine
// (spec §4.1, C1): a common Downloader interface with one implementation
// per remote-store protocol, plus the listing matcher (C3) and the
// copy-or-download decider (C4) that sit on top of it.
package download

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/retry"
)

// Downloader is the per-protocol contract every remote store
// implementation satisfies. A Downloader lives for the duration of one
// logical operation (a list or a batch download); it owns its network
// handle and is never shared between concurrent operations (spec §4.1,
// §9 design notes).
type Downloader interface {
	// SetCredentials sets a "user:password" style credential string.
	SetCredentials(userpwd string)
	// SetProxy sets an optional proxy URL and auth string.
	SetProxy(url, auth string)
	// SetTimeout sets the per-operation network timeout.
	SetTimeout(d time.Duration)
	// SetParam replaces the query/form parameter map.
	SetParam(param map[string]string)
	// SetMethod sets the HTTP method ("GET" or "POST") for protocols
	// that use one.
	SetMethod(method model.HTTPMethod)
	// SetSaveAs overrides the save-as path for single-file operations.
	SetSaveAs(path string)
	// SetOfflineDir points to a local cache directory the copy-or-download
	// decider may hardlink/copy from.
	SetOfflineDir(dir string)
	// SetOptions replaces the free-form options map (e.g.
	// skip_check_uncompress).
	SetOptions(options map[string]string)

	// SetFilesToDownload replaces the internal file list with files,
	// normalizing each entry.
	SetFilesToDownload(files []model.RemoteFile)
	// FilesToDownload returns the current internal file list.
	FilesToDownload() []model.RemoteFile

	// List performs one network round-trip listing subdir (relative to
	// root) and returns the files and subdirectories found there.
	List(ctx context.Context, subdir string) (files, dirs []model.RemoteFile, err error)

	// Download iterates the internal file list, transferring each file
	// under localDir (creating subdirectories when keepDirs is true), and
	// returns the enriched RemoteFile results. It fails fast on the
	// first non-retriable failure.
	Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error)

	// Close releases the downloader's network handle.
	Close() error
}

// Options are the mutable, protocol-agnostic settings every Downloader
// implementation embeds and exposes through the Set* methods above.
type Options struct {
	Credentials string
	ProxyURL    string
	ProxyAuth   string
	Timeout     time.Duration
	Param       map[string]string
	Method      model.HTTPMethod
	SaveAs      string
	OfflineDir  string
	Options     map[string]string
}

func (o *Options) SetCredentials(userpwd string) { o.Credentials = userpwd }
func (o *Options) SetProxy(url, auth string)      { o.ProxyURL = url; o.ProxyAuth = auth }
func (o *Options) SetTimeout(d time.Duration)     { o.Timeout = d }
func (o *Options) SetParam(p map[string]string)   { o.Param = p }
func (o *Options) SetMethod(m model.HTTPMethod)   { o.Method = m }
func (o *Options) SetSaveAs(path string)          { o.SaveAs = path }
func (o *Options) SetOfflineDir(dir string)       { o.OfflineDir = dir }
func (o *Options) SetOptions(opts map[string]string) { o.Options = opts }

// SkipCheckUncompress reports whether the archive probe should be
// skipped, default-on per spec §9(c).
func (o *Options) SkipCheckUncompress() bool {
	return o.Options["skip_check_uncompress"] == "true"
}

// RetryPolicy rebuilds a retry.Policy from the job's "stop_condition" and
// "wait_policy" options (spec §3 RetryPolicy, §4.2), the same way the
// original's _set_retryer (download/interface.py) reconstructs a tenacity
// Retrying from those two option keys. def is used for whichever half is
// absent or fails to parse, and as the whole result when neither is set.
func (o *Options) RetryPolicy(def retry.Policy) retry.Policy {
	stop, hasStop := o.Options["stop_condition"]
	wait, hasWait := o.Options["wait_policy"]
	if !hasStop && !hasWait {
		return def
	}
	var clauses []string
	if hasStop && strings.TrimSpace(stop) != "" {
		clauses = append(clauses, stop)
	}
	if hasWait && strings.TrimSpace(wait) != "" {
		clauses = append(clauses, wait)
	}
	if len(clauses) == 0 {
		return def
	}
	pol, err := retry.Parse(strings.Join(clauses, " & "))
	if err != nil {
		slog.Warn("invalid retry policy options, using default", "stop_condition", stop, "wait_policy", wait, "error", err)
		return def
	}
	if !hasStop || strings.TrimSpace(stop) == "" {
		pol.Stop = def.Stop
	}
	if !hasWait || strings.TrimSpace(wait) == "" {
		pol.Wait = def.Wait
	}
	return pol
}

// FileList is embedded by every protocol implementation to hold and
// normalize the files-to-download list (spec §4.1 SetFilesToDownload).
type FileList struct {
	Root  string
	files []model.RemoteFile
}

func (l *FileList) SetFilesToDownload(files []model.RemoteFile) {
	normalized := make([]model.RemoteFile, len(files))
	for i, f := range files {
		f.Normalize(l.Root)
		normalized[i] = f
	}
	l.files = normalized
}

func (l *FileList) FilesToDownload() []model.RemoteFile { return l.files }

// New constructs the Downloader for a RemoteSource's protocol (spec §9:
// "a small enum tag selects the concrete type at message-dispatch time").
func New(src model.RemoteSource) (Downloader, error) {
	switch src.Protocol {
	case model.ProtocolFTP, model.ProtocolFTPS:
		return newFTPDownloader(src)
	case model.ProtocolSFTP:
		return newSFTPDownloader(src)
	case model.ProtocolHTTP, model.ProtocolHTTPS:
		return newHTTPDownloader(src)
	case model.ProtocolDirectFTP, model.ProtocolDirectFTPS:
		return newDirectFTPDownloader(src)
	case model.ProtocolDirectHTTP, model.ProtocolDirectHTTPS:
		return newDirectHTTPDownloader(src)
	case model.ProtocolRsync:
		return newRsyncDownloader(src)
	case model.ProtocolIrods:
		return newIrodsDownloader(src)
	case model.ProtocolLocal:
		return newLocalDownloader(src)
	default:
		return nil, ConfigError("unknown protocol: " + string(src.Protocol))
	}
}

// downloadOneWithRetry runs transfer under pol, logging retries the way
// the teacher's HTTP client logs retries (spec §4.1 Download, C2).
func downloadOneWithRetry(ctx context.Context, pol retry.Policy, repo, path string, transfer func(ctx context.Context) error) error {
	attempt := 0
	return pol.Run(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			slog.Warn("retrying download", "repo", repo, "path", path, "attempt", attempt)
		}
		err := transfer(ctx)
		if err != nil && !Retriable(err) {
			return retry.Abort(err)
		}
		return err
	})
}

// ensureDir creates dir (and parents) if missing, matching the teacher's
// 0750 directory mode convention.
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := mkdirAll(dir); err != nil {
		return errors.Wrap(err, "ensureDir")
	}
	return nil
}

// fileDir computes the local directory a file should land in, honoring
// keepDirs the way spec §4.1 Download describes.
func fileDir(localDir, saveAs string, keepDirs bool) string {
	if !keepDirs {
		return localDir
	}
	d := filepath.Dir(saveAs)
	if d == "." {
		return localDir
	}
	return filepath.Join(localDir, d)
}
