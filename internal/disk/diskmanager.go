// Package disk implements C1: reading and writing fixed-size pages to a
// single backing file and allocating monotonically increasing page ids.
//
// There is no caching here — coherence across concurrent readers/writers
// is the buffer pool's job (internal/buffer). DiskManager only knows how
// to seek, read, write, and grow the file.
package disk

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
)

// PageSize is the fixed size, in bytes, of every page (spec.md §3).
const PageSize = 4096

// InvalidPageID is the sentinel for "no next/child page" (spec.md §3).
const InvalidPageID uint32 = 0xFFFFFFFF

// Manager reads and writes pages to a single backing file and hands out
// monotonically increasing page ids. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	file     *os.File
	nextPage uint32

	// id tags every error message this manager returns, so errors from
	// multiple engine instances can be told apart.
	id uuid.UUID
}

// Open opens (or creates) the backing file at path.
func Open(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %q: %w", path, err)
	}
	next := uint32(info.Size() / PageSize)
	return &Manager{file: f, nextPage: next, id: uuid.New()}, nil
}

// ID identifies this DiskManager instance for log correlation.
func (m *Manager) ID() uuid.UUID { return m.id }

// ReadPage reads exactly PageSize bytes for pid from the backing file.
func (m *Manager) ReadPage(pid uint32) ([]byte, error) {
	buf := make([]byte, PageSize)
	off := int64(pid) * PageSize
	n, err := m.file.ReadAt(buf, off)
	if err != nil {
		return nil, fmt.Errorf("disk[%s]: read page %d: %w", m.id, pid, err)
	}
	if n != PageSize {
		return nil, fmt.Errorf("disk[%s]: short read on page %d: got %d of %d bytes", m.id, pid, n, PageSize)
	}
	return buf, nil
}

// WritePage writes exactly PageSize bytes for pid to the backing file.
// Does not fsync; callers that need durability call Sync explicitly.
func (m *Manager) WritePage(pid uint32, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("disk[%s]: write page %d: buffer is %d bytes, want %d", m.id, pid, len(data), PageSize)
	}
	off := int64(pid) * PageSize
	n, err := m.file.WriteAt(data, off)
	if err != nil {
		return fmt.Errorf("disk[%s]: write page %d: %w", m.id, pid, err)
	}
	if n != PageSize {
		return fmt.Errorf("disk[%s]: short write on page %d: wrote %d of %d bytes", m.id, pid, n, PageSize)
	}
	return nil
}

// AllocatePage extends the file by one zeroed page and returns its id.
// Ids are handed out sequentially starting at 0 and are never reused,
// even after a page's frame is later deleted from the buffer pool
// (spec.md §3, §9 open question 4).
func (m *Manager) AllocatePage() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pid := m.nextPage
	zero := make([]byte, PageSize)
	off := int64(pid) * PageSize
	if _, err := m.file.WriteAt(zero, off); err != nil {
		return 0, fmt.Errorf("disk[%s]: allocate page %d: %w", m.id, pid, err)
	}
	m.nextPage++
	return pid, nil
}

// Sync flushes OS buffers to stable storage.
func (m *Manager) Sync() error {
	if err := m.file.Sync(); err != nil {
		return fmt.Errorf("disk[%s]: sync: %w", m.id, err)
	}
	return nil
}

// Close closes the backing file.
func (m *Manager) Close() error {
	return m.file.Close()
}
