package download

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jlaffaye/ftp"

	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/retry"
)

// directFTPDownloader implements direct-ftp(s) (spec §4.1 table): no
// listing, a caller-supplied file list; a MDTM/SIZE probe discovers size
// and mtime per file, and 350 is treated as a successful probe response.
type directFTPDownloader struct {
	Options
	FileList
	server      string
	implicitTLS bool
	conn        *ftp.ServerConn
	pol         retry.Policy
	now         func() time.Time
}

func newDirectFTPDownloader(src model.RemoteSource) (Downloader, error) {
	d := &directFTPDownloader{
		server:      src.Server,
		implicitTLS: src.Protocol == model.ProtocolDirectFTPS,
		pol:         retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitExponential(time.Second, time.Second, 30*time.Second)},
		now:         time.Now,
	}
	d.FileList.SetFilesToDownload(src.Files)
	return d, nil
}

func (d *directFTPDownloader) dial(ctx context.Context) (*ftp.ServerConn, error) {
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
	user, pass := "anonymous", "anonymous@"
	if d.Credentials != "" {
		user, pass, _ = strings.Cut(d.Credentials, ":")
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, NetworkError(err)
	}
	d.conn = conn
	return conn, nil
}

// List for a direct downloader returns exactly the preset file list
// (spec §4.1 table), probing each entry's size/mtime via MDTM/SIZE.
func (d *directFTPDownloader) List(ctx context.Context, _ string) ([]model.RemoteFile, []model.RemoteFile, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	files := make([]model.RemoteFile, 0, len(d.FilesToDownload()))
	for _, f := range d.FilesToDownload() {
		probed := f
		if size, err := conn.FileSize(f.Name); err == nil {
			probed.Size = uint64(size)
		}
		if t, err := conn.GetTime(f.Name); err == nil {
			probed.Year, probed.Month, probed.Day = t.Year(), int(t.Month()), t.Day()
		}
		probed.Hash = HashFTPLine([]byte(f.Name))
		files = append(files, probed)
	}
	return files, nil, nil
}

func (d *directFTPDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
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
		err := downloadOneWithRetry(ctx, pol, d.server, f.Name, func(ctx context.Context) error {
			return d.transferOne(conn, f.Name, dest)
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

func (d *directFTPDownloader) transferOne(conn *ftp.ServerConn, name, dest string) error {
	r, err := conn.Retr(name)
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

func (d *directFTPDownloader) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.Quit()
	d.conn = nil
	return err
}

// directHTTPDownloader implements direct-http(s) (spec §4.1 table): a
// HEAD probe per file discovers size/date, tolerating 405 (method not
// allowed) by passing the file through with unknown size/date; the GET
// query string or POST form body is populated from Param.
type directHTTPDownloader struct {
	Options
	FileList
	server string
	client *http.Client
	pol    retry.Policy
}

func newDirectHTTPDownloader(src model.RemoteSource) (Downloader, error) {
	d := &directHTTPDownloader{
		server: src.Server,
		client: newRedirectLoggingClient(),
		pol:    retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitExponential(time.Second, time.Second, 30*time.Second)},
	}
	d.FileList.SetFilesToDownload(src.Files)
	return d, nil
}

func (d *directHTTPDownloader) targetURL(f model.RemoteFile) string {
	if f.URL != "" {
		return f.URL
	}
	return d.server
}

func (d *directHTTPDownloader) List(ctx context.Context, _ string) ([]model.RemoteFile, []model.RemoteFile, error) {
	files := make([]model.RemoteFile, 0, len(d.FilesToDownload()))
	for _, f := range d.FilesToDownload() {
		probed := f
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, d.targetURL(f), nil)
		if err != nil {
			return nil, nil, ConfigError(err.Error())
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, nil, NetworkError(err)
		}
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			if resp.ContentLength > 0 {
				probed.Size = uint64(resp.ContentLength)
			}
			if lm := resp.Header.Get("Last-Modified"); lm != "" {
				if t, err := http.ParseTime(lm); err == nil {
					probed.Year, probed.Month, probed.Day = t.Year(), int(t.Month()), t.Day()
				}
			}
			// spec §9(b): missing Last-Modified leaves year/month/day unset.
		case http.StatusMethodNotAllowed:
			// tolerated: pass through with unknown size/date.
		default:
			return nil, nil, NetworkError(errors.Newf("HEAD %s returned status %d", d.targetURL(f), resp.StatusCode))
		}
		probed.Hash = HashFileMeta(probed.Name, dateString(probed), probed.Size)
		files = append(files, probed)
	}
	return files, nil, nil
}

func (d *directHTTPDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
	pol := d.RetryPolicy(d.pol)
	var out []model.RemoteFile
	for _, f := range d.FilesToDownload() {
		dest := filepath.Join(localDir, f.SaveAs)
		if err := ensureDir(fileDir(localDir, f.SaveAs, keepDirs)); err != nil {
			return out, err
		}
		start := time.Now()
		err := downloadOneWithRetry(ctx, pol, d.server, f.Name, func(ctx context.Context) error {
			return d.transferOne(ctx, f, dest)
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

func (d *directHTTPDownloader) transferOne(ctx context.Context, f model.RemoteFile, dest string) error {
	method := d.Method
	if method == "" {
		method = model.MethodGET
	}
	target := d.targetURL(f)

	var req *http.Request
	var err error
	if method == model.MethodPOST {
		form := url.Values{}
		for k, v := range d.Param {
			form.Set(k, v)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		u, perr := url.Parse(target)
		if perr != nil {
			return ConfigError(perr.Error())
		}
		q := u.Query()
		for k, v := range d.Param {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	if err != nil {
		return ConfigError(err.Error())
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return NetworkError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NetworkError(errors.Newf("GET/POST %s returned status %d", target, resp.StatusCode))
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is under the job's local_dir
	if err != nil {
		return errors.Wrap(err, "open destination")
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
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

	if shouldProbeArchive(&d.Options) && looksLikeArchive(f.Name) {
		if err := probeArchive(dest); err != nil {
			os.Remove(dest)
			return err
		}
	}
	return nil
}

func (d *directHTTPDownloader) Close() error { return nil }
