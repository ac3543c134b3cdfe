package download

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/biomaj/biomaj-download/internal/model"
	"github.com/biomaj/biomaj-download/internal/retry"
)

// sftpDownloader implements Downloader for sftp (spec §4.1 table): same
// listing/date semantics as FTP, but over an SSH session, using a
// known_hosts file and an ssh_new_host policy of reject/accept/add.
type sftpDownloader struct {
	Options
	FileList
	server           string
	remoteDir        string
	knownHostsFile   string
	newHostPolicy    model.SSHNewHostPolicy
	sshClient        *ssh.Client
	client           *sftp.Client
	pol              retry.Policy
	now              func() time.Time
}

func newSFTPDownloader(src model.RemoteSource) (Downloader, error) {
	d := &sftpDownloader{
		server:         src.Server,
		remoteDir:      src.RemoteDir,
		knownHostsFile: src.KnownHostsFile,
		newHostPolicy:  src.SSHNewHostPolicy,
		pol:            retry.Policy{Stop: retry.StopAfterAttempt(5), Wait: retry.WaitExponential(time.Second, time.Second, 30*time.Second)},
		now:            time.Now,
	}
	if d.newHostPolicy == "" {
		d.newHostPolicy = model.SSHNewHostReject
	}
	d.FileList.Root = src.RemoteDir
	return d, nil
}

func (d *sftpDownloader) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.knownHostsFile == "" {
		if d.newHostPolicy == model.SSHNewHostAccept {
			return ssh.InsecureIgnoreHostKey(), nil // #nosec G106 - explicit opt-in via ssh_new_host=accept
		}
		return nil, ConfigError("sftp: known_hosts_file required unless ssh_new_host=accept")
	}

	base, err := knownhosts.New(d.knownHostsFile)
	if err != nil {
		return nil, ConfigError("sftp: invalid known_hosts_file: " + err.Error())
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := base(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			// Known host, but the key changed: always reject.
			return err
		}
		switch d.newHostPolicy {
		case model.SSHNewHostAccept:
			return nil
		case model.SSHNewHostAdd:
			return appendKnownHost(d.knownHostsFile, hostname, key)
		default:
			return errors.Newf("sftp: unknown host %s rejected (ssh_new_host=reject)", hostname)
		}
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // #nosec G304 - path is operator-configured known_hosts file
	if err != nil {
		return err
	}
	defer f.Close()
	line := knownhosts.Line([]string{hostname}, key)
	_, err = f.WriteString(line + "\n")
	return err
}

func (d *sftpDownloader) dial(ctx context.Context) (*sftp.Client, error) {
	if d.client != nil {
		return d.client, nil
	}
	hostKeyCb, err := d.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user, pass := "anonymous", ""
	if d.Credentials != "" {
		user, pass, _ = strings.Cut(d.Credentials, ":")
	}

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: hostKeyCb,
		Timeout:         d.Timeout,
	}

	addr := d.server
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "22")
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, NetworkError(err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return nil, NetworkError(err)
	}
	d.sshClient = ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(d.sshClient)
	if err != nil {
		d.sshClient.Close()
		return nil, NetworkError(err)
	}
	d.client = client
	return client, nil
}

func (d *sftpDownloader) List(ctx context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
	client, err := d.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	dir := joinRemote(d.remoteDir, subdir)
	entries, err := client.ReadDir(dir)
	if err != nil {
		return nil, nil, NetworkError(err)
	}
	var files, dirs []model.RemoteFile
	for _, e := range entries {
		rf := model.RemoteFile{Name: e.Name(), Size: uint64(e.Size()), Permissions: e.Mode().String()}
		y, m, day := disambiguateFTPDate(e.ModTime(), d.now())
		rf.Year, rf.Month, rf.Day = y, m, day
		rf.Hash = HashFTPLine([]byte(rf.Name + " " + e.Mode().String()))
		if e.IsDir() {
			dirs = append(dirs, rf)
		} else {
			files = append(files, rf)
		}
	}
	return files, dirs, nil
}

func (d *sftpDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
	client, err := d.dial(ctx)
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
			return d.transferOne(client, remotePath, dest, f.Name)
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

func (d *sftpDownloader) transferOne(client *sftp.Client, remotePath, dest, name string) error {
	r, err := client.Open(remotePath)
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

func (d *sftpDownloader) Close() error {
	if d.client != nil {
		d.client.Close()
		d.client = nil
	}
	if d.sshClient != nil {
		err := d.sshClient.Close()
		d.sshClient = nil
		return err
	}
	return nil
}
