package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kuleuven/iron/api"

	"github.com/biomaj/biomaj-download/internal/model"
)

// irodsDownloader implements Downloader for iRODS (spec §4.1 table):
// listing is a server-side query over objects owned by the user,
// deduplicated by (name, date); transfer uses the native object-get API.
// Grounded on github.com/kuleuven/iron/api's Walk/OpenDataObject calls
// (other_examples kuleuven-vfs transfer worker).
type irodsDownloader struct {
	Options
	FileList
	server    string
	remoteDir string
	client    *api.API
}

func newIrodsDownloader(src model.RemoteSource) (Downloader, error) {
	d := &irodsDownloader{server: src.Server, remoteDir: src.RemoteDir}
	d.FileList.Root = src.RemoteDir
	return d, nil
}

func (d *irodsDownloader) dial(ctx context.Context) (*api.API, error) {
	if d.client != nil {
		return d.client, nil
	}
	user, pass := "", ""
	if d.Credentials != "" {
		user, pass, _ = strings.Cut(d.Credentials, ":")
	}
	client, err := api.Dial(ctx, api.ConnectionOptions{
		Host:     d.server,
		Username: user,
		Password: pass,
	})
	if err != nil {
		return nil, NetworkError(err)
	}
	d.client = client
	return client, nil
}

func (d *irodsDownloader) List(ctx context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
	client, err := d.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	dir := joinRemote(d.remoteDir, subdir)

	type key struct {
		name string
		date string
	}
	seen := make(map[key]bool)
	var files, dirs []model.RemoteFile

	walkErr := client.Walk(ctx, dir, func(irodsPath string, record api.Record, err error) error {
		if err != nil {
			return err
		}
		if irodsPath == dir {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(irodsPath, dir), "/")
		if rel == "" {
			return nil
		}
		date := record.ModifyTime.Format("2006-01-02")
		k := key{name: rel, date: date}
		if seen[k] {
			return nil
		}
		seen[k] = true

		rf := model.RemoteFile{
			Name: rel,
			Size: uint64(record.Size),
			Year: record.ModifyTime.Year(), Month: int(record.ModifyTime.Month()), Day: record.ModifyTime.Day(),
		}
		rf.Hash = HashFileMeta(rf.Name, dateString(rf), rf.Size)
		if record.IsCollection() {
			dirs = append(dirs, rf)
		} else {
			files = append(files, rf)
		}
		return nil
	}, api.LexographicalOrder, api.NoSkip)
	if walkErr != nil {
		return nil, nil, NetworkError(walkErr)
	}
	return files, dirs, nil
}

func (d *irodsDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
	client, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
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
		if err := d.transferOne(ctx, client, remotePath, dest); err != nil {
			f.Error = true
			return out, NetworkError(err)
		}
		f.DownloadTime = time.Since(start).Seconds()
		if err := setModTime(dest, &f); err != nil {
			return out, errors.Wrap(err, "setModTime")
		}
		out = append(out, f)
	}
	return out, nil
}

func (d *irodsDownloader) transferOne(ctx context.Context, client *api.API, remotePath, dest string) error {
	r, err := client.OpenDataObject(ctx, remotePath, api.O_RDONLY)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is under the job's local_dir
	if err != nil {
		return errors.Wrap(err, "open destination")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errors.Wrap(err, "sync destination")
	}
	return out.Close()
}

func (d *irodsDownloader) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
