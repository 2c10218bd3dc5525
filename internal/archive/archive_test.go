package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newArchive(t *testing.T, policy Policy) (*Archive, string) {
	t.Helper()
	root := t.TempDir()
	a, err := New(root, "{telescope}/{pulsar}", policy)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, root
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "obs1.ar")
	if err := os.WriteFile(path, []byte(content), 0660); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	return path
}

func TestNew(t *testing.T) {
	if _, err := New("", "{pulsar}", PolicyCopy); err == nil {
		t.Error("New() with empty root: error = nil")
	}
	if _, err := New(t.TempDir(), "{pulsar}", Policy("link")); err == nil {
		t.Error("New() with unknown policy: error = nil")
	}
}

func TestMD5File(t *testing.T) {
	path := writeSource(t, "hello world")
	md5, size, err := MD5File(path)
	if err != nil {
		t.Fatalf("MD5File() error = %v", err)
	}
	if md5 != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 = %s, want 5eb63bbbe01eeed093cb22bb8f5acdc3", md5)
	}
	if size != 11 {
		t.Errorf("size = %d, want 11", size)
	}

	if _, _, err := MD5File(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("MD5File() on missing file: error = nil")
	}
}

func TestDestDir(t *testing.T) {
	a, root := newArchive(t, PolicyCopy)

	t.Run("renders the layout", func(t *testing.T) {
		dir, err := a.DestDir("rawfiles", map[string]string{
			"telescope": "Parkes", "pulsar": "J0437-4715",
		})
		if err != nil {
			t.Fatalf("DestDir() error = %v", err)
		}
		want := filepath.Join(root, "rawfiles", "Parkes", "J0437-4715")
		if dir != want {
			t.Errorf("DestDir() = %s, want %s", dir, want)
		}
	})

	t.Run("missing field errors", func(t *testing.T) {
		_, err := a.DestDir("rawfiles", map[string]string{"telescope": "Parkes"})
		if err == nil {
			t.Error("DestDir() error = nil, want missing field error")
		}
	})

	t.Run("empty field errors", func(t *testing.T) {
		_, err := a.DestDir("rawfiles", map[string]string{
			"telescope": "Parkes", "pulsar": "",
		})
		if err == nil {
			t.Error("DestDir() error = nil, want empty field error")
		}
	})

	t.Run("path separator in a field errors", func(t *testing.T) {
		_, err := a.DestDir("rawfiles", map[string]string{
			"telescope": "Parkes", "pulsar": "../escape",
		})
		if err == nil {
			t.Error("DestDir() error = nil, want separator rejection")
		}
	})
}

func TestArchive(t *testing.T) {
	fields := map[string]string{"telescope": "Parkes", "pulsar": "J0437-4715"}

	t.Run("copy policy archives read-only and keeps the source", func(t *testing.T) {
		a, _ := newArchive(t, PolicyCopy)
		src := writeSource(t, "archive bytes")
		destDir, err := a.DestDir("rawfiles", fields)
		if err != nil {
			t.Fatalf("DestDir() error = %v", err)
		}

		final, err := a.Archive(src, destDir)
		if err != nil {
			t.Fatalf("Archive() error = %v", err)
		}

		info, err := os.Stat(final)
		if err != nil {
			t.Fatalf("archived file missing: %v", err)
		}
		if info.Mode().Perm() != 0440 {
			t.Errorf("mode = %o, want 0440", info.Mode().Perm())
		}
		data, err := os.ReadFile(final)
		if err != nil {
			t.Fatalf("reading archived file: %v", err)
		}
		if string(data) != "archive bytes" {
			t.Errorf("archived content = %q", data)
		}
		if _, err := os.Stat(src); err != nil {
			t.Errorf("source removed under copy policy: %v", err)
		}
	})

	t.Run("move policy removes the source", func(t *testing.T) {
		a, _ := newArchive(t, PolicyMove)
		src := writeSource(t, "archive bytes")
		destDir, _ := a.DestDir("rawfiles", fields)

		if _, err := a.Archive(src, destDir); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Errorf("source still present under move policy")
		}
	})

	t.Run("identical destination is a no-op", func(t *testing.T) {
		a, _ := newArchive(t, PolicyCopy)
		src := writeSource(t, "archive bytes")
		destDir, _ := a.DestDir("rawfiles", fields)

		first, err := a.Archive(src, destDir)
		if err != nil {
			t.Fatalf("first Archive() error = %v", err)
		}
		second, err := a.Archive(src, destDir)
		if err != nil {
			t.Fatalf("second Archive() error = %v", err)
		}
		if second != first {
			t.Errorf("second Archive() = %s, want %s", second, first)
		}
	})

	t.Run("occupied destination with different bytes errors", func(t *testing.T) {
		a, _ := newArchive(t, PolicyCopy)
		destDir, _ := a.DestDir("rawfiles", fields)

		first := writeSource(t, "original bytes")
		if _, err := a.Archive(first, destDir); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}

		other := writeSource(t, "different bytes")
		_, err := a.Archive(other, destDir)
		if err == nil || !strings.Contains(err.Error(), "already occupied") {
			t.Errorf("Archive() error = %v, want occupied-destination error", err)
		}
		if _, statErr := os.Stat(other); statErr != nil {
			t.Errorf("rejected source disturbed: %v", statErr)
		}
	})

	t.Run("destination outside the root errors", func(t *testing.T) {
		a, _ := newArchive(t, PolicyCopy)
		src := writeSource(t, "archive bytes")
		if _, err := a.Archive(src, t.TempDir()); err == nil {
			t.Error("Archive() error = nil, want escape rejection")
		}
	})
}
