package download

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/biomaj/biomaj-download/internal/model"
)

// HashFTPLine derives the listing hash from the raw FTP listing line
// bytes, with no normalization, so caches built by one process stay
// compatible with any other (spec §3, §8, §9 "Hash stability").
func HashFTPLine(line []byte) string {
	sum := sha256.Sum256(line)
	return hex.EncodeToString(sum[:])
}

// HashFileMeta derives the listing hash for HTTP/local downloaders from
// (name, date, size), a pure function so identical inputs yield
// identical hashes across processes (spec §3, §8).
func HashFileMeta(name, dateString string, size uint64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", name, dateString, size)))
	return hex.EncodeToString(sum[:])
}

// dateString renders a RemoteFile's date the same way regardless of
// caller, so HashFileMeta sees a stable string even when year/month/day
// are unset (spec §9(b)).
func dateString(f model.RemoteFile) string {
	if !f.HasDate() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", f.Year, f.Month, f.Day)
}
