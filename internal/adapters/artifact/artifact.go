// Package artifact keeps downloaded report rows as JSON files under a root directory
package artifact

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	perr "mixshift/internal/platform/errors"
)

// FS stores artifacts at Root/<seller>/<type>/<report>.json
type FS struct {
	Root string
}

// New returns an FS rooted at root
func New(root string) *FS {
	if root == "" {
		root = "var/artifacts"
	}
	return &FS{Root: root}
}

// Path returns where a document is stored
func (f *FS) Path(seller, reportType, reportID string) string {
	return filepath.Join(f.Root, clean(seller), strings.ToLower(clean(reportType)), clean(reportID)+".json")
}

// Save writes rows atomically and returns the final path and size
func (f *FS) Save(_ context.Context, seller, reportType, reportID string, rows []map[string]any) (string, int64, error) {
	path := f.Path(seller, reportType, reportID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact mkdir")
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", 0, perr.Wrap(err, perr.ErrorCodeJSON, "artifact encode")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact temp file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return "", 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact write")
	}
	if err := tmp.Close(); err != nil {
		return "", 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact close")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact rename")
	}
	return path, int64(len(b)), nil
}

// Load reads an artifact written by Save
func (f *FS) Load(_ context.Context, path string) ([]map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.NotFoundf("artifact %s", path)
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "artifact read")
	}
	var rows []map[string]any
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "artifact %s", path)
	}
	return rows, nil
}

func clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}

