package download

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/biomaj/biomaj-download/internal/model"
)

// listFunc lists one directory level the way a Downloader.List would, so
// Match can be exercised against an in-memory tree in tests as well as
// against a live Downloader.
type listFunc func(ctx context.Context, prefix string) (files, dirs []model.RemoteFile, err error)

const wildcardAny = "**/*"

// Match applies patterns to an already-fetched (files, dirs) listing at
// prefix, recursing into subdirectories via list as needed (spec §4.3,
// C3). The outer call fails with ErrNoMatch if it produced zero matches;
// recursive calls never fail that way.
func Match(ctx context.Context, root string, patterns []string, files, dirs []model.RemoteFile, list listFunc) ([]model.RemoteFile, error) {
	matched, err := matchAt(ctx, root, patterns, files, dirs, "", list)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, NoMatchError("no file matched any of the given patterns")
	}
	return matched, nil
}

func matchAt(ctx context.Context, root string, patterns []string, files, dirs []model.RemoteFile, prefix string, list listFunc) ([]model.RemoteFile, error) {
	var out []model.RemoteFile
	for _, pattern := range patterns {
		m, err := matchOne(ctx, root, pattern, files, dirs, prefix, list)
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	return out, nil
}

func matchOne(ctx context.Context, root, pattern string, files, dirs []model.RemoteFile, prefix string, list listFunc) ([]model.RemoteFile, error) {
	segments := strings.Split(pattern, "/")
	if len(segments) > 0 && segments[0] == "^" {
		segments = segments[1:]
	}

	if pattern == wildcardAny {
		var out []model.RemoteFile
		for _, f := range files {
			out = append(out, withPrefix(f, prefix, root))
		}
		for _, d := range dirs {
			subPrefix := joinPrefix(prefix, d.Name)
			subFiles, subDirs, err := list(ctx, "/"+subPrefix+"/")
			if err != nil {
				return nil, err
			}
			recur, err := matchAt(ctx, root, []string{wildcardAny}, subFiles, subDirs, subPrefix, list)
			if err != nil {
				return nil, err
			}
			out = append(out, recur...)
		}
		return out, nil
	}

	if len(segments) == 1 {
		re, err := regexp.Compile(segments[0])
		if err != nil {
			return nil, ConfigError("invalid match pattern: " + segments[0])
		}
		var out []model.RemoteFile
		for _, f := range files {
			if re.MatchString(f.Name) {
				out = append(out, withPrefix(f, prefix, root))
			}
		}
		return out, nil
	}

	re, err := regexp.Compile(segments[0])
	if err != nil {
		return nil, ConfigError("invalid match pattern: " + segments[0])
	}
	rest := strings.Join(segments[1:], "/")

	var out []model.RemoteFile
	for _, d := range dirs {
		if !re.MatchString(d.Name) {
			continue
		}
		subPrefix := joinPrefix(prefix, d.Name)
		subFiles, subDirs, err := list(ctx, "/"+subPrefix+"/")
		if err != nil {
			return nil, err
		}
		recur, err := matchAt(ctx, root, []string{rest}, subFiles, subDirs, subPrefix, list)
		if err != nil {
			return nil, err
		}
		out = append(out, recur...)
	}
	return out, nil
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// withPrefix rewrites a matched file's name to include the accumulated
// prefix and sets its root, as spec §4.3 requires.
func withPrefix(f model.RemoteFile, prefix, root string) model.RemoteFile {
	if prefix != "" {
		f.Name = path.Join(prefix, f.Name)
	}
	f.Root = root
	return f
}
