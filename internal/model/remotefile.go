package model

import (
	"path"
	"regexp"
	"time"
)

// RemoteFile is one remote artifact to list or transfer (spec §3).
//
// A RemoteFile travels three times through the system: once as the
// pattern-matched result of a LIST operation, once embedded in a
// DownloadJob, and once as the enriched result of a DOWNLOAD operation.
type RemoteFile struct {
	Name string `json:"name"`
	Root string `json:"root,omitempty"`
	SaveAs string `json:"save_as,omitempty"`
	URL    string `json:"url,omitempty"`

	Size        uint64 `json:"size,omitempty"`
	Permissions string `json:"permissions,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Group       string `json:"group,omitempty"`
	Year        int    `json:"year,omitempty"`
	Month       int    `json:"month,omitempty"`
	Day         int    `json:"day,omitempty"`
	Hash        string `json:"hash,omitempty"`
	MD5         string `json:"md5,omitempty"`
	Format      string `json:"format,omitempty"`

	DownloadTime float64 `json:"download_time,omitempty"`

	Param map[string]string `json:"param,omitempty"`

	Error bool `json:"error,omitempty"`
}

// Normalize fills defaults the way the source's `_append_file_to_download`
// does: collapse repeated slashes in Name, default SaveAs to Name, ensure
// Param is non-nil.
func (f *RemoteFile) Normalize(defaultRoot string) {
	f.Name = collapseSlashes(f.Name)
	if f.SaveAs == "" {
		f.SaveAs = f.Name
	}
	if f.Root == "" {
		f.Root = defaultRoot
	}
	if f.Param == nil {
		f.Param = map[string]string{}
	}
}

// slashRunRe matches runs of two or more slashes, mirroring the source's
// re.sub('/{2,}', '/', name): only runs collapse, a single leading "/" is
// preserved.
var slashRunRe = regexp.MustCompile(`/{2,}`)

// collapseSlashes turns any run of "/" into a single "/", per spec §3 name
// normalization.
func collapseSlashes(name string) string {
	return slashRunRe.ReplaceAllString(name, "/")
}

// HasDate reports whether year/month/day were ever populated.
func (f *RemoteFile) HasDate() bool {
	return f.Year != 0 || f.Month != 0 || f.Day != 0
}

// ModTime returns the local midnight instant the downloaded file's mtime
// should be set to, when a date is known (spec §3 invariant).
func (f *RemoteFile) ModTime() (time.Time, bool) {
	if !f.HasDate() {
		return time.Time{}, false
	}
	return time.Date(f.Year, time.Month(f.Month), f.Day, 0, 0, 0, 0, time.Local), true
}

// Path joins Root and Name the way a URL would be recomputed when URL is
// absent (spec §3: "url ... recomputed from root+name if absent").
func (f *RemoteFile) Path() string {
	if f.URL != "" {
		return f.URL
	}
	return path.Join(f.Root, f.Name)
}

// SameInventory reports whether f and other share the
// (name, year, month, day, size) tuple the copy-or-download decider
// compares (spec §4.4, §8 property).
func (f *RemoteFile) SameInventory(other *RemoteFile) bool {
	return f.Name == other.Name &&
		f.Year == other.Year && f.Month == other.Month && f.Day == other.Day &&
		f.Size == other.Size
}

// Clone returns a deep-enough copy for use as a result distinct from the
// job's input list.
func (f *RemoteFile) Clone() *RemoteFile {
	c := *f
	if f.Param != nil {
		c.Param = make(map[string]string, len(f.Param))
		for k, v := range f.Param {
			c.Param[k] = v
		}
	}
	return &c
}
