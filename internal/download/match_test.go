package download

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/biomaj/biomaj-download/internal/model"
)

// tree is a tiny in-memory directory tree keyed by prefix ("" for root,
// "/sub/" etc., matching the prefix convention matchOne passes to list),
// used to exercise Match without a live Downloader.
type tree map[string]struct {
	files []model.RemoteFile
	dirs  []model.RemoteFile
}

func (tr tree) list(_ context.Context, prefix string) ([]model.RemoteFile, []model.RemoteFile, error) {
	entry, ok := tr[prefix]
	if !ok {
		return nil, nil, nil
	}
	return entry.files, entry.dirs, nil
}

func TestMatchFlatPattern(t *testing.T) {
	files := []model.RemoteFile{{Name: "readme.txt"}, {Name: "data.csv"}}
	matched, err := Match(context.Background(), "/bank", []string{`.*\.csv$`}, files, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].Name != "data.csv" {
		t.Fatalf("matched = %+v, want just data.csv", matched)
	}
	if matched[0].Root != "/bank" {
		t.Fatalf("Root = %q, want /bank", matched[0].Root)
	}
}

func TestMatchNoneReturnsNoMatchError(t *testing.T) {
	files := []model.RemoteFile{{Name: "readme.txt"}}
	_, err := Match(context.Background(), "/bank", []string{`.*\.csv$`}, files, nil, nil)
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestMatchRecursesIntoSubdirectory(t *testing.T) {
	tr := tree{
		"": {
			dirs: []model.RemoteFile{{Name: "sub"}},
		},
		"/sub/": {
			files: []model.RemoteFile{{Name: "inner.txt"}},
		},
	}
	matched, err := Match(context.Background(), "/bank", []string{`sub/inner\.txt`}, nil, tr[""].dirs, tr.list)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].Name != "sub/inner.txt" {
		t.Fatalf("matched = %+v, want sub/inner.txt", matched)
	}
}

func TestMatchWildcardAnyRecursesAllLevels(t *testing.T) {
	tr := tree{
		"": {
			files: []model.RemoteFile{{Name: "top.txt"}},
			dirs:  []model.RemoteFile{{Name: "sub"}},
		},
		"/sub/": {
			files: []model.RemoteFile{{Name: "inner.txt"}},
		},
	}
	matched, err := Match(context.Background(), "/bank", []string{wildcardAny}, tr[""].files, tr[""].dirs, tr.list)
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, m := range matched {
		names[m.Name] = true
	}
	if !names["top.txt"] || !names["sub/inner.txt"] {
		t.Fatalf("matched = %+v, want top.txt and sub/inner.txt", matched)
	}
}

func TestMatchInvalidPatternIsConfigError(t *testing.T) {
	files := []model.RemoteFile{{Name: "readme.txt"}}
	_, err := Match(context.Background(), "/bank", []string{"("}, files, nil, nil)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
