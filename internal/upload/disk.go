package upload

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// URLPrefix is where the server mounts the upload directory.
const URLPrefix = "/uploads/"

// DiskUploader writes files under a local directory that the server itself
// serves at URLPrefix. It is meant for development and single-node setups.
type DiskUploader struct {
	dir     string
	baseURL string
}

var _ Uploader = (*DiskUploader)(nil)

// NewDiskUploader stores files under dir. baseURL is the public origin of the
// server, e.g. http://localhost:3000.
func NewDiskUploader(dir, baseURL string) (*DiskUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: creating %s: %w", dir, err)
	}
	return &DiskUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (u *DiskUploader) Upload(ctx context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("upload: key %q escapes the upload directory", key)
	}
	dest := filepath.Join(u.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("upload: creating directory for %s: %w", key, err)
	}

	// Write to a temp file first so a failed or cancelled upload never leaves
	// a truncated file at the final path.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("upload: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, readerWithContext(ctx, body)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("upload: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("upload: closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("upload: moving %s into place: %w", key, err)
	}

	return u.baseURL + URLPrefix + key, nil
}

// Handler serves the stored files under URLPrefix. Only regular files with an
// accepted image extension are served; directories and anything else are 404,
// and browsers are told not to second-guess the content type.
func (u *DiskUploader) Handler() http.Handler {
	files := http.FileServer(imageDir{http.Dir(u.dir)})
	return http.StripPrefix(URLPrefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	}))
}

// imageDir is an http.FileSystem that hides everything but image files.
type imageDir struct {
	dir http.Dir
}

func (d imageDir) Open(name string) (http.File, error) {
	if !isImageExtension(strings.ToLower(path.Ext(name))) {
		return nil, fs.ErrNotExist
	}
	f, err := d.dir.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
