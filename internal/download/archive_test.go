package download

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
)

func writeTemp(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProbeArchiveValidGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	path := writeTemp(t, "archive.gz", buf.Bytes())
	if err := probeArchive(path); err != nil {
		t.Fatalf("probeArchive() = %v, want nil for a valid gzip archive", err)
	}
}

func TestProbeArchiveTruncatedGzipFails(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("hello world, this is a longer payload to truncate")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-4]

	path := writeTemp(t, "archive.gz", truncated)
	err := probeArchive(path)
	if !errors.Is(err, ErrArchiveIntegrity) {
		t.Fatalf("probeArchive() = %v, want ErrArchiveIntegrity for a truncated gzip archive", err)
	}
}

func TestProbeArchiveNonArchivePayloadIsNotAnError(t *testing.T) {
	path := writeTemp(t, "plain.txt", []byte("just a plain text file, not an archive at all"))
	if err := probeArchive(path); err != nil {
		t.Fatalf("probeArchive() = %v, want nil for a non-archive payload", err)
	}
}

func TestShouldProbeArchiveDefaultOn(t *testing.T) {
	opts := &Options{}
	if !shouldProbeArchive(opts) {
		t.Error("shouldProbeArchive() = false, want true by default")
	}
}

func TestShouldProbeArchiveOptOut(t *testing.T) {
	opts := &Options{Options: map[string]string{"skip_check_uncompress": "true"}}
	if shouldProbeArchive(opts) {
		t.Error("shouldProbeArchive() = true, want false when skip_check_uncompress is set")
	}
}
