package download

import (
	"testing"

	"github.com/biomaj/biomaj-download/internal/model"
)

func TestHashFTPLineDeterministic(t *testing.T) {
	a := HashFTPLine([]byte("-rw-r--r-- 1 ftp ftp 1234 Jan 01 00:00 file.txt"))
	b := HashFTPLine([]byte("-rw-r--r-- 1 ftp ftp 1234 Jan 01 00:00 file.txt"))
	if a != b {
		t.Fatalf("HashFTPLine not deterministic: %q != %q", a, b)
	}
}

func TestHashFTPLineDiffersOnInput(t *testing.T) {
	a := HashFTPLine([]byte("-rw-r--r-- 1 ftp ftp 1234 Jan 01 00:00 file.txt"))
	b := HashFTPLine([]byte("-rw-r--r-- 1 ftp ftp 4321 Jan 02 00:00 other.txt"))
	if a == b {
		t.Fatalf("HashFTPLine collided on distinct lines")
	}
}

func TestHashFileMetaDeterministic(t *testing.T) {
	a := HashFileMeta("file.txt", "2024-01-01", 1234)
	b := HashFileMeta("file.txt", "2024-01-01", 1234)
	if a != b {
		t.Fatalf("HashFileMeta not deterministic: %q != %q", a, b)
	}
}

func TestHashFileMetaDiffersPerField(t *testing.T) {
	base := HashFileMeta("file.txt", "2024-01-01", 1234)
	cases := []string{
		HashFileMeta("other.txt", "2024-01-01", 1234),
		HashFileMeta("file.txt", "2024-01-02", 1234),
		HashFileMeta("file.txt", "2024-01-01", 4321),
	}
	for _, h := range cases {
		if h == base {
			t.Fatalf("HashFileMeta did not change with differing field, got %q for both", h)
		}
	}
}

func TestDateStringUnsetWhenNoDate(t *testing.T) {
	f := model.RemoteFile{Name: "file.txt"}
	if got := dateString(f); got != "" {
		t.Fatalf("dateString() = %q, want empty string for file with no date", got)
	}
}

func TestDateStringZeroPadded(t *testing.T) {
	f := model.RemoteFile{Name: "file.txt", Year: 2024, Month: 1, Day: 2}
	if got, want := dateString(f), "2024-01-02"; got != want {
		t.Fatalf("dateString() = %q, want %q", got, want)
	}
}
