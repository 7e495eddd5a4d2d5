// Package fileutil writes videos into the staging directory.
package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrTooLarge is returned when a staged stream exceeds its size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// StageReader streams r into dir/name through a temporary file and renames it
// into place once complete. A limit above zero caps the number of bytes
// accepted; the partial file is removed when the cap is exceeded.
func StageReader(dir, name string, r io.Reader, limit int64) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return "", written, fmt.Errorf("write staging file: %w", err)
	}
	if limit > 0 && written > limit {
		cleanup()
		return "", written, fmt.Errorf("%w (%d bytes)", ErrTooLarge, limit)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", written, fmt.Errorf("sync staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", written, fmt.Errorf("close staging file: %w", err)
	}

	dst := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return "", written, fmt.Errorf("rename staging file: %w", err)
	}
	if err := os.Chmod(dst, 0o644); err != nil {
		return dst, written, fmt.Errorf("chmod staging file: %w", err)
	}
	return dst, written, nil
}

// CopyVerified copies src to dst and compares the SHA256 of the written file
// with the source. dst is removed on mismatch.
func CopyVerified(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	srcHash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, srcHash), in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	dstSum, err := fileSHA256(dst)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if string(dstSum) != string(srcHash.Sum(nil)) {
		_ = os.Remove(dst)
		return errors.New("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

func fileSHA256(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// CleanName reduces a client supplied file name to a safe base name.
func CleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}

// Within reports whether path lies inside dir.
func Within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
