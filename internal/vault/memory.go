package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// MemoryMirror is an in-memory Mirror implementation for tests.
type MemoryMirror struct {
	name    string
	content map[string][]byte
}

// NewMemoryMirror creates an empty in-memory mirror.
func NewMemoryMirror(name string) *MemoryMirror {
	return &MemoryMirror{
		name:    name,
		content: make(map[string][]byte),
	}
}

func (m *MemoryMirror) Put(_ context.Context, md5 string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	if _, ok := m.content[md5]; ok {
		return nil // idempotent
	}
	m.content[md5] = data
	return nil
}

func (m *MemoryMirror) Get(_ context.Context, md5 string, w io.Writer) error {
	data, ok := m.content[md5]
	if !ok {
		return fmt.Errorf("content not found: %s", md5)
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (m *MemoryMirror) Has(_ context.Context, md5 string) (bool, error) {
	_, ok := m.content[md5]
	return ok, nil
}

func (m *MemoryMirror) ValidateSetup(_ context.Context) error { return nil }

// Count returns the number of stored items. For tests.
func (m *MemoryMirror) Count() int { return len(m.content) }

var _ Mirror = (*MemoryMirror)(nil)
