package client

import (
	"testing"

	"github.com/biomaj/biomaj-download/internal/model"
)

func TestBuildJobsOneJobPerFile(t *testing.T) {
	src := model.RemoteSource{
		Protocol:  model.ProtocolFTP,
		Server:    "ftp.example.org",
		RemoteDir: "/pub/bank",
		Matches:   []string{".*"},
	}
	files := []model.RemoteFile{{Name: "a.txt"}, {Name: "b.txt"}}

	jobs := BuildJobs("mybank", "sid123", "/local/mybank", src, files, model.MethodGET, 30, map[string]string{"keep_dirs": "true"})

	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %d, want 2", len(jobs))
	}
	for i, j := range jobs {
		if j.Bank != "mybank" || j.Session != "sid123" || j.LocalDir != "/local/mybank" {
			t.Errorf("job %d identity fields = %+v", i, j)
		}
		if j.TimeoutDownload != 30 || j.HTTPMethod != model.MethodGET {
			t.Errorf("job %d transfer fields = %+v", i, j)
		}
		if len(j.RemoteFile.Files) != 1 || j.RemoteFile.Files[0].Name != files[i].Name {
			t.Errorf("job %d RemoteFile.Files = %+v, want just %v", i, j.RemoteFile.Files, files[i])
		}
		if j.RemoteFile.Matches != nil {
			t.Errorf("job %d RemoteFile.Matches = %+v, want nil (per-file jobs don't re-match)", i, j.RemoteFile.Matches)
		}
		if j.RemoteFile.Protocol != model.ProtocolFTP || j.RemoteFile.Server != "ftp.example.org" {
			t.Errorf("job %d did not inherit source protocol/server: %+v", i, j.RemoteFile)
		}
	}
}

func TestBuildJobsEmptyFileList(t *testing.T) {
	jobs := BuildJobs("bank", "sid", "/local", model.RemoteSource{}, nil, model.MethodGET, 0, nil)
	if len(jobs) != 0 {
		t.Fatalf("len(jobs) = %d, want 0", len(jobs))
	}
}

func TestApplyCopyOrDownloadDelegatesToDecider(t *testing.T) {
	files := []model.RemoteFile{{Name: "same.txt", Year: 2024, Month: 1, Day: 1, Size: 10}}
	inventory := []model.RemoteFile{{Name: "same.txt", Year: 2024, Month: 1, Day: 1, Size: 10}}

	toCopy, toDownload := ApplyCopyOrDownload(files, inventory, "/offline", false)

	if len(toCopy) != 1 || len(toDownload) != 0 {
		t.Fatalf("toCopy=%+v toDownload=%+v, want one file routed to copy", toCopy, toDownload)
	}
}
