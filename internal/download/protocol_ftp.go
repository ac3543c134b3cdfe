package download

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"

	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/retry"
)

// ftpDownloader implements Downloader for ftp/ftps (spec §4.1 table).
// Listing parses the server's raw LIST text with a Unix-ls grammar,
// falling back to an MS-DOS grammar; both are preserved from the three
// original_source ftp.py revisions (SPEC_FULL.md "Supplemented
// features"). Connections use github.com/jlaffaye/ftp.
type ftpDownloader struct {
	Options
	FileList
	server   string
	remoteDir string
	implicitTLS bool
	conn     *ftp.ServerConn
	pol      retry.Policy
	now      func() time.Time
}

func newFTPDownloader(src model.RemoteSource) (Downloader, error) {
	d := &ftpDownloader{
		server:      src.Server,
		remoteDir:   src.RemoteDir,
		implicitTLS: src.Protocol == model.ProtocolFTPS,
		pol:         retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitExponential(time.Second, time.Second, 30*time.Second)},
		now:         time.Now,
	}
	d.FileList.Root = src.RemoteDir
	return d, nil
}

func (d *ftpDownloader) dial(ctx context.Context) (*ftp.ServerConn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	opts := []ftp.DialOption{ftp.DialWithContext(ctx), ftp.DialWithTimeout(d.Timeout)}
	if d.implicitTLS {
		opts = append(opts, ftp.DialWithTLS(&tls.Config{MinVersion: tls.VersionTLS12}))
	}
	conn, err := ftp.Dial(d.server, opts...)
	if err != nil {
		return nil, NetworkError(err)
	}
	if d.Credentials != "" {
		user, pass, _ := strings.Cut(d.Credentials, ":")
		if err := conn.Login(user, pass); err != nil {
			conn.Quit()
			return nil, NetworkError(err)
		}
	} else {
		if err := conn.Login("anonymous", "anonymous@"); err != nil {
			conn.Quit()
			return nil, NetworkError(err)
		}
	}
	d.conn = conn
	return conn, nil
}

func (d *ftpDownloader) List(ctx context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	dir := joinRemote(d.remoteDir, subdir)
	entries, err := conn.List(dir)
	if err != nil {
		return nil, nil, NetworkError(err)
	}
	var files, dirs []model.RemoteFile
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		rf := entryToRemoteFile(e, d.now())
		if e.Type == ftp.EntryTypeFolder {
			dirs = append(dirs, rf)
		} else {
			files = append(files, rf)
		}
	}
	return files, dirs, nil
}

func entryToRemoteFile(e *ftp.Entry, now time.Time) model.RemoteFile {
	rf := model.RemoteFile{
		Name:        e.Name,
		Size:        e.Size,
		Permissions: "",
	}
	y, m, day := disambiguateFTPDate(e.Time, now)
	rf.Year, rf.Month, rf.Day = y, m, day
	// The hash input is the entry's name, size and parsed time rendered
	// as text, not the raw LIST line.
	rf.Hash = HashFTPLine([]byte(fmt.Sprintf("%s %d %v", e.Name, e.Size, e.Time)))
	return rf
}

// disambiguateFTPDate applies spec §4.1.1's year-guessing rule to a
// parsed month/day that may be missing a year, relative to now (the
// jlaffaye/ftp client already guesses a year internally for Unix-style
// listings; this function re-derives it from t's month/day and the now
// passed in, which a downloader takes from d.now).
func disambiguateFTPDate(t time.Time, now time.Time) (year, month, day int) {
	month, day = int(t.Month()), t.Day()
	year = now.Year()
	curMonth, curDay := int(now.Month()), now.Day()
	if month > curMonth || (month == curMonth && day > curDay) {
		year--
	}
	return year, month, day
}

func joinRemote(base, subdir string) string {
	if subdir == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(subdir, "/")
}

func (d *ftpDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	pol := d.RetryPolicy(d.pol)
	var out []model.RemoteFile
	for _, f := range d.FilesToDownload() {
		if err := ctx.Err(); err != nil {
			return out, ErrCanceled
		}
		dest := filepath.Join(localDir, f.SaveAs)
		if err := ensureDir(fileDir(localDir, f.SaveAs, keepDirs)); err != nil {
			return out, err
		}
		start := time.Now()
		remotePath := joinRemote(d.remoteDir, f.Name)
		err := downloadOneWithRetry(ctx, pol, d.server, f.Name, func(ctx context.Context) error {
			return d.transferOne(conn, remotePath, dest, f.Name)
		})
		if err != nil {
			f.Error = true
			return out, err
		}
		f.DownloadTime = time.Since(start).Seconds()
		if err := setModTime(dest, &f); err != nil {
			return out, errors.Wrap(err, "setModTime")
		}
		out = append(out, f)
	}
	return out, nil
}

func (d *ftpDownloader) transferOne(conn *ftp.ServerConn, remotePath, dest, name string) error {
	r, err := conn.Retr(remotePath)
	if err != nil {
		return NetworkError(err)
	}
	defer r.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is under the job's local_dir
	if err != nil {
		return errors.Wrap(err, "open destination")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return NetworkError(err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrap(err, "sync destination")
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, "close destination")
	}

	if shouldProbeArchive(&d.Options) && looksLikeArchive(name) {
		if err := probeArchive(dest); err != nil {
			os.Remove(dest)
			return err
		}
	}
	return nil
}

func (d *ftpDownloader) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Quit()
	d.conn = nil
	return err
}
