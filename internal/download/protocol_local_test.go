package download

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/biomaj/biomaj-download/internal/model"
)

func TestLocalDownloaderListSeparatesFilesAndDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "subdir"), 0o750); err != nil {
		t.Fatal(err)
	}

	d, err := newLocalDownloader(model.RemoteSource{RemoteDir: root})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	files, dirs, err := d.List(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "file.txt" {
		t.Fatalf("files = %+v, want just file.txt", files)
	}
	if files[0].Size != 5 {
		t.Fatalf("files[0].Size = %d, want 5", files[0].Size)
	}
	if len(dirs) != 1 || dirs[0].Name != "subdir" {
		t.Fatalf("dirs = %+v, want just subdir", dirs)
	}
}

func TestLocalDownloaderDownloadCopiesContent(t *testing.T) {
	root := t.TempDir()
	localDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "file.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := newLocalDownloader(model.RemoteSource{RemoteDir: root})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	d.SetFilesToDownload([]model.RemoteFile{{Name: "file.txt", Root: root}})
	results, err := d.Download(context.Background(), localDir, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want 1 entry", results)
	}

	got, err := os.ReadFile(filepath.Join(localDir, "file.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload" {
		t.Fatalf("downloaded content = %q, want %q", got, "payload")
	}
}

func TestLocalDownloaderDownloadKeepsDirs(t *testing.T) {
	root := t.TempDir()
	localDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := newLocalDownloader(model.RemoteSource{RemoteDir: root})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	d.SetFilesToDownload([]model.RemoteFile{{Name: "sub/file.txt", Root: root}})
	if _, err := d.Download(context.Background(), localDir, true); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(localDir, "sub", "file.txt")); err != nil {
		t.Fatalf("expected file under sub/, got error: %v", err)
	}
}
