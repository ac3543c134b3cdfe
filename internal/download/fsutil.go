package download

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/biomaj/biomaj-download/internal/model"
)

// dirCreateMu is the process-wide directory-creation mutex spec §5 calls
// for: the worker creates file_dir non-atomically, and if two workers
// target the same directory they must serialize creation. The local-copy
// downloader's copy path uses the same lock (spec §5 Shared resources).
// Adapted from the teacher's DirSync fsync discipline in dirsync.go.
var dirCreateMu sync.Mutex

// mkdirAll creates dir and any missing parents, serialized by
// dirCreateMu so concurrent workers targeting the same directory don't
// race MkdirAll.
func mkdirAll(dir string) error {
	dirCreateMu.Lock()
	defer dirCreateMu.Unlock()
	if err := os.MkdirAll(dir, 0750); err != nil && !os.IsExist(err) {
		return err
	}
	return nil
}

// DirSync calls fsync(2) on a directory to persist changes made within
// it (renames, creates). Must be called after any os.Create/os.Rename
// that should survive a crash.
func DirSync(dir string) error {
	f, err := os.OpenFile(dir, os.O_RDONLY, 0755) // #nosec G304,G302 - dir is caller-controlled, not user input
	if err != nil {
		return errors.Wrap(err, "DirSync")
	}
	defer f.Close()
	return f.Sync()
}

// setModTime applies f's (year, month, day) as the local file's mtime,
// per spec §3's invariant on successful downloads.
func setModTime(path string, f *model.RemoteFile) error {
	t, ok := f.ModTime()
	if !ok {
		return nil
	}
	return os.Chtimes(path, t, t)
}
