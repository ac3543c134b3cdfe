package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biomaj/biomaj-download/internal/model"
)

// fakeDownloader records every Set* call configureDownloader makes,
// satisfying download.Downloader without a real protocol implementation.
type fakeDownloader struct {
	credentials string
	proxyURL    string
	proxyAuth   string
	timeout     time.Duration
	param       map[string]string
	method      model.HTTPMethod
	saveAs      string
	offlineDir  string
	options     map[string]string
}

func (f *fakeDownloader) SetCredentials(userpwd string) { f.credentials = userpwd }
func (f *fakeDownloader) SetProxy(url, auth string)     { f.proxyURL, f.proxyAuth = url, auth }
func (f *fakeDownloader) SetTimeout(d time.Duration)    { f.timeout = d }
func (f *fakeDownloader) SetParam(p map[string]string)  { f.param = p }
func (f *fakeDownloader) SetMethod(m model.HTTPMethod)  { f.method = m }
func (f *fakeDownloader) SetSaveAs(path string)         { f.saveAs = path }
func (f *fakeDownloader) SetOfflineDir(dir string)      { f.offlineDir = dir }
func (f *fakeDownloader) SetOptions(o map[string]string) { f.options = o }
func (f *fakeDownloader) SetFilesToDownload(_ []model.RemoteFile) {}
func (f *fakeDownloader) FilesToDownload() []model.RemoteFile { return nil }
func (f *fakeDownloader) List(_ context.Context, _ string) ([]model.RemoteFile, []model.RemoteFile, error) {
	return nil, nil, nil
}
func (f *fakeDownloader) Download(_ context.Context, _ string, _ bool) ([]model.RemoteFile, error) {
	return nil, nil
}
func (f *fakeDownloader) Close() error { return nil }

func TestConfigureDownloaderAppliesJobSettings(t *testing.T) {
	job := model.DownloadJob{
		RemoteFile: model.RemoteSource{
			Credentials: "user:pass",
			Param:       map[string]string{"a": "1"},
			SaveAs:      "renamed.txt",
		},
		Proxy:           &model.ProxyConfig{Proxy: "http://proxy:8080", ProxyAuth: "u:p"},
		TimeoutDownload: 30,
		HTTPMethod:      model.MethodPOST,
		Options:         map[string]string{"keep_dirs": "true"},
	}

	d := &fakeDownloader{}
	configureDownloader(d, job)

	if d.credentials != "user:pass" {
		t.Errorf("credentials = %q, want user:pass", d.credentials)
	}
	if d.proxyURL != "http://proxy:8080" || d.proxyAuth != "u:p" {
		t.Errorf("proxy = (%q, %q), want (http://proxy:8080, u:p)", d.proxyURL, d.proxyAuth)
	}
	if d.timeout != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", d.timeout)
	}
	if d.param["a"] != "1" {
		t.Errorf("param = %+v, want a=1", d.param)
	}
	if d.method != model.MethodPOST {
		t.Errorf("method = %q, want POST", d.method)
	}
	if d.saveAs != "renamed.txt" {
		t.Errorf("saveAs = %q, want renamed.txt", d.saveAs)
	}
	if d.options["keep_dirs"] != "true" {
		t.Errorf("options = %+v, want keep_dirs=true", d.options)
	}
}

func TestConfigureDownloaderSkipsZeroValues(t *testing.T) {
	d := &fakeDownloader{credentials: "untouched"}
	configureDownloader(d, model.DownloadJob{})

	if d.credentials != "untouched" {
		t.Errorf("credentials = %q, want untouched when job leaves it empty", d.credentials)
	}
	if d.timeout != 0 {
		t.Errorf("timeout = %v, want 0 when job leaves TimeoutDownload unset", d.timeout)
	}
}

func TestEnrichWithLocalStatFillsSizeAndPermissions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o640); err != nil {
		t.Fatal(err)
	}

	f := model.RemoteFile{SaveAs: "file.txt"}
	enrichWithLocalStat(dir, &f)

	if f.Size != 5 {
		t.Errorf("Size = %d, want 5", f.Size)
	}
	if f.Owner == "" || f.Group == "" {
		t.Errorf("Owner/Group not populated: %+v", f)
	}
}

func TestEnrichWithLocalStatLeavesUnsetOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	f := model.RemoteFile{SaveAs: "missing.txt"}
	enrichWithLocalStat(dir, &f)

	if f.Size != 0 {
		t.Errorf("Size = %d, want 0 for a missing file", f.Size)
	}
}
