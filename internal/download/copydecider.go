package download

import (
	"os"
	"path/filepath"

	"github.com/biomaj/biomaj-download/internal/model"
)

// DownloadOrCopy splits filesToDownload against a local inventory: files
// whose (name, year, month, day, size) tuple is unchanged move to
// filesToCopy with Root rewritten to localRoot, everything else stays in
// filesToDownload (spec §4.4, C4). When checkExists is true, an
// inventory entry is only eligible for copy if the file still exists at
// localRoot/name on disk; when false, the inventory is trusted as-is.
func DownloadOrCopy(filesToDownload []model.RemoteFile, inventory []model.RemoteFile, localRoot string, checkExists bool) (toCopy, toDownload []model.RemoteFile) {
	byName := make(map[string]model.RemoteFile, len(inventory))
	for _, inv := range inventory {
		byName[inv.Name] = inv
	}

	toCopy = make([]model.RemoteFile, 0, len(filesToDownload))
	toDownload = make([]model.RemoteFile, 0, len(filesToDownload))
	for _, f := range filesToDownload {
		local, ok := byName[f.Name]
		if ok && f.SameInventory(&local) && (!checkExists || existsAt(localRoot, f.Name)) {
			cp := f
			cp.Root = localRoot
			toCopy = append(toCopy, cp)
			continue
		}
		toDownload = append(toDownload, f)
	}
	return toCopy, toDownload
}

func existsAt(root, name string) bool {
	_, err := os.Stat(filepath.Join(root, name))
	return err == nil
}
