// Package bundle manages snapshot output folders: naming them after the
// captured host, keeping names unique, streaming them as zip archives and
// discarding partial output.
package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for folder names that are not a single plain
// path segment.
var ErrInvalidName = errors.New("bundle: invalid folder name")

// FolderName derives the output folder name from a URL: the hostname with
// every "." replaced by "-" (https://www.example.com -> www-example-com).
func FolderName(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("bundle: folder name: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("bundle: folder name: %q has no host", rawURL)
	}
	host = strings.ReplaceAll(host, ".", "-")
	host = strings.ReplaceAll(host, ":", "-") // IPv6 literals
	return host, nil
}

// ValidName reports whether name can be used as a folder under a downloads
// root without escaping it.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// Unique returns name, or name-2, name-3, ... if a folder of that name
// already exists under root.
func Unique(root, name string) (string, error) {
	if !ValidName(name) {
		return "", ErrInvalidName
	}
	candidate := name
	for i := 2; ; i++ {
		_, err := os.Stat(filepath.Join(root, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("bundle: stat %s: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
}

// Zip writes dir as a zip archive to w. Entry names are slash-separated
// and relative to dir.
func Zip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			_, err := zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return addFile(zw, path, name)
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("bundle: zip %s: %w", dir, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: zip %s: %w", dir, err)
	}
	return nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(fw, f)
	return err
}

// Discard removes a partial output folder. A missing folder is not an error.
func Discard(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("bundle: discard %s: %w", dir, err)
	}
	return nil
}
