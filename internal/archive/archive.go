// Package archive implements the content-addressed file archive. Files
// are ingested by MD5, verified after copy, and made read-only. The
// destination layout is rendered from a configured template whose
// fields come from extracted header values.
package archive

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Policy selects what happens to the source file after a verified copy.
type Policy string

const (
	// PolicyMove deletes the source after the copy is verified.
	PolicyMove Policy = "move"
	// PolicyCopy leaves the source in place.
	PolicyCopy Policy = "copy"
)

// Archive is a content-addressed archive rooted at a single directory.
type Archive struct {
	root   string
	layout string
	policy Policy
}

// New creates an Archive. layout is a template like
// "{telescope}/{pulsar}/{backend}/{frontend}" rendered against header
// fields to compute destination directories.
func New(root, layout string, policy Policy) (*Archive, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root not configured")
	}
	switch policy {
	case PolicyMove, PolicyCopy:
	default:
		return nil, fmt.Errorf("unknown archive policy: %q", policy)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	return &Archive{root: abs, layout: layout, policy: policy}, nil
}

// Root returns the absolute archive root.
func (a *Archive) Root() string { return a.root }

// MD5File computes the MD5 checksum and byte size of the file at path.
func MD5File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening file for checksum: %w", err)
	}
	defer f.Close()

	h := md5.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("checksumming file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// DestDir renders the layout template against fields and joins the
// result under the archive root, then under subTree ("rawfiles",
// "parfiles", "templates", or "diagnostics"). The resolved path must
// stay under the root.
func (a *Archive) DestDir(subTree string, fields map[string]string) (string, error) {
	rendered, err := renderLayout(a.layout, fields)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(a.root, subTree, rendered)
	dest = filepath.Clean(dest)
	if dest != a.root && !strings.HasPrefix(dest, a.root+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %s escapes archive root %s", dest, a.root)
	}
	return dest, nil
}

// renderLayout substitutes {field} placeholders. Unknown fields and
// field values containing path separators are errors.
func renderLayout(layout string, fields map[string]string) (string, error) {
	var b strings.Builder
	rest := layout
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:open])
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder in layout template: %q", layout)
		}
		name := rest[open+1 : open+closing]
		value, ok := fields[name]
		if !ok {
			return "", fmt.Errorf("layout template field %q not available", name)
		}
		if value == "" {
			return "", fmt.Errorf("layout template field %q is empty", name)
		}
		if strings.ContainsAny(value, `/\`) {
			return "", fmt.Errorf("layout template field %q contains a path separator: %q", name, value)
		}
		b.WriteString(value)
		rest = rest[open+closing+1:]
	}
	return b.String(), nil
}

// Archive ingests the file at srcPath into destDir (which must be under
// the root, normally computed by DestDir). It returns the final path.
//
// If destDir already holds a file of the same name the two are compared
// by MD5 and size: identical is a no-op, different is an error. The
// copy is written to a temp file, re-verified, renamed into place, and
// narrowed to mode 0440. Under PolicyMove the source is removed only
// after verification succeeds.
func (a *Archive) Archive(srcPath, destDir string) (string, error) {
	srcMD5, srcSize, err := MD5File(srcPath)
	if err != nil {
		return "", err
	}

	if !strings.HasPrefix(filepath.Clean(destDir), a.root) {
		return "", fmt.Errorf("destination %s escapes archive root %s", destDir, a.root)
	}

	if err := os.MkdirAll(destDir, 0770); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(srcPath))

	if _, err := os.Stat(destPath); err == nil {
		destMD5, destSize, err := MD5File(destPath)
		if err != nil {
			return "", err
		}
		if destMD5 == srcMD5 && destSize == srcSize {
			// Already archived. The source is left untouched.
			return destPath, nil
		}
		return "", fmt.Errorf("destination already occupied by a different file: %s", destPath)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking destination: %w", err)
	}

	if err := a.copyVerified(srcPath, destPath, srcMD5, srcSize); err != nil {
		return "", err
	}

	if a.policy == PolicyMove {
		if err := os.Remove(srcPath); err != nil {
			return "", fmt.Errorf("removing source after archive: %w", err)
		}
	}

	if err := os.Chmod(destPath, 0440); err != nil {
		return "", fmt.Errorf("narrowing permissions: %w", err)
	}

	return destPath, nil
}

// copyVerified copies src to dest via a temp file in the destination
// directory and re-verifies MD5 and size before the final rename. A
// checksum mismatch is fatal and leaves the source untouched.
func (a *Archive) copyVerified(srcPath, destPath, wantMD5 string, wantSize int64) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

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

	if _, err := io.Copy(tmpFile, src); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	gotMD5, gotSize, err := MD5File(tmpPath)
	if err != nil {
		return err
	}
	if gotMD5 != wantMD5 || gotSize != wantSize {
		return fmt.Errorf("verification failed after copy: md5 %s/%s size %d/%d",
			gotMD5, wantMD5, gotSize, wantSize)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
