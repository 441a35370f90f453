package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LocalStorage keeps published objects in a directory. Links point at
// baseURL when one is configured (the server mounts the directory there),
// otherwise at the file itself.
type LocalStorage struct {
	dir     string
	baseURL string
}

func NewLocalStorage(dir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (ls *LocalStorage) Dir() string { return ls.dir }

func (ls *LocalStorage) Upload(ctx context.Context, localPath, key string) error {
	dest, err := ls.path(key)
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", key, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

func (ls *LocalStorage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	p, err := ls.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("object %s: %w", key, err)
	}

	if ls.baseURL == "" {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
	q := url.Values{"expires": {strconv.FormatInt(time.Now().Add(expiry).Unix(), 10)}}
	return ls.baseURL + "/" + url.PathEscape(key) + "?" + q.Encode(), nil
}

// path rejects keys that would escape the storage directory
func (ls *LocalStorage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(ls.dir, key), nil
}
