package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/biomaj/biomaj-download/internal/model"
)

// localDownloader implements Downloader for the local filesystem (spec
// §4.1 table: "local"). Listing is a readdir over root+subdir;
// "download" prefers a hardlink and falls back to a byte copy when
// hardlinking isn't possible (cross-device, or disabled), mirroring the
// teacher's Storage hardlink-reuse path in storage.go.
type localDownloader struct {
	Options
	FileList
	root         string
	hardlinkFirst bool
}

func newLocalDownloader(src model.RemoteSource) (Downloader, error) {
	d := &localDownloader{root: src.RemoteDir, hardlinkFirst: true}
	d.FileList.Root = src.RemoteDir
	return d, nil
}

func (d *localDownloader) List(_ context.Context, subdir string) ([]model.RemoteFile, []model.RemoteFile, error) {
	dir := filepath.Join(d.root, subdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, NetworkError(err)
	}
	var files, dirs []model.RemoteFile
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		rf := model.RemoteFile{
			Name:        e.Name(),
			Root:        d.root,
			Size:        uint64(info.Size()),
			Permissions: info.Mode().String(),
			Year:        info.ModTime().Year(),
			Month:       int(info.ModTime().Month()),
			Day:         info.ModTime().Day(),
		}
		rf.Hash = HashFileMeta(rf.Name, dateString(rf), rf.Size)
		if e.IsDir() {
			dirs = append(dirs, rf)
		} else {
			files = append(files, rf)
		}
	}
	return files, dirs, nil
}

func (d *localDownloader) Download(ctx context.Context, localDir string, keepDirs bool) ([]model.RemoteFile, error) {
	var out []model.RemoteFile
	for _, f := range d.FilesToDownload() {
		if err := ctx.Err(); err != nil {
			return out, ErrCanceled
		}
		dir := fileDir(localDir, f.SaveAs, keepDirs)
		if err := ensureDir(dir); err != nil {
			return out, err
		}
		dest := filepath.Join(localDir, f.SaveAs)
		start := time.Now()
		src := filepath.Join(f.Root, f.Name)
		if err := d.transferOne(src, dest); err != nil {
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

// transferOne hardlinks src to dest when hardlinkFirst is set, falling
// back to a byte copy on any link failure (different device, disabled,
// unsupported filesystem). The link call is made while holding the
// process-wide dirCreateMu, the lock ensureDir takes; the byte copy runs
// without it.
func (d *localDownloader) transferOne(src, dest string) error {
	os.Remove(dest)
	if d.hardlinkFirst {
		dirCreateMu.Lock()
		err := os.Link(src, dest)
		dirCreateMu.Unlock()
		if err == nil {
			return nil
		}
	}
	return copyFile(src, dest)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src) // #nosec G304 - src is a resolved remote-file path from a trusted listing
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600) // #nosec G304 - dest is under the job's local_dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (d *localDownloader) Close() error { return nil }
