package vault

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemMirror stores mirrored content as files named by MD5:
//
//	<root>/
//	  content/
//	    <md5>
type FileSystemMirror struct {
	name       string
	root       string
	contentDir string
}

// NewFileSystemMirror creates a filesystem mirror rooted at the given path.
func NewFileSystemMirror(name, root string) (*FileSystemMirror, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemMirror{name: name, root: root, contentDir: contentDir}, nil
}

// Put stores content identified by its MD5. Idempotent.
func (m *FileSystemMirror) Put(_ context.Context, md5 string, r io.Reader, size int64) error {
	destPath := filepath.Join(m.contentDir, md5)

	// If content already exists, skip (idempotent)
	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	return m.writeFile(destPath, r, size)
}

// Get retrieves content by MD5 and writes it to w.
func (m *FileSystemMirror) Get(_ context.Context, md5 string, w io.Writer) error {
	f, err := os.Open(filepath.Join(m.contentDir, md5))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("content not found: %s", md5)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// Has reports whether the checksum is present.
func (m *FileSystemMirror) Has(_ context.Context, md5 string) (bool, error) {
	_, err := os.Stat(filepath.Join(m.contentDir, md5))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking content: %w", err)
	}
	return true, nil
}

// ValidateSetup verifies that the mirror directories are accessible.
func (m *FileSystemMirror) ValidateSetup(_ context.Context) error {
	for _, dir := range []string{m.root, m.contentDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("mirror directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("mirror path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (m *FileSystemMirror) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemMirror implements Mirror
var _ Mirror = (*FileSystemMirror)(nil)
