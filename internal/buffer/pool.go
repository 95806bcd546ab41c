package buffer

import (
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/relstore/relstore/internal/dberr"
	"github.com/relstore/relstore/internal/disk"
)

// Manager is C4: a fixed-size cache of page frames between the disk
// and every layer above it. All pin/unpin bookkeeping — the page
// table, the free list, and the replacer — is serialised by a single
// lock; actual disk I/O runs with that lock released, guarded only by
// the victim frame's own latch (spec.md §4.4, §5).
type Manager struct {
	mu sync.Mutex

	disk     *disk.Manager
	replacer *Replacer
	frames   []*Frame
	table    map[uint32]int // page id -> frame index
	free     []int          // indices never yet assigned a page

	id uuid.UUID
}

// NewManager creates a buffer pool of poolSize frames backed by disk,
// using an LRU-K replacer with history depth k.
func NewManager(d *disk.Manager, poolSize int, k int) *Manager {
	frames := make([]*Frame, poolSize)
	free := make([]int, poolSize)
	for i := range frames {
		frames[i] = newFrame(disk.PageSize)
		frames[i].pageID = disk.InvalidPageID
		free[i] = poolSize - 1 - i // pop from the end; order is irrelevant
	}
	return &Manager{
		disk:     d,
		replacer: NewReplacer(k),
		frames:   frames,
		table:    make(map[uint32]int, poolSize),
		free:     free,
		id:       uuid.New(),
	}
}

// Size returns the number of frames in the pool.
func (m *Manager) Size() int { return len(m.frames) }

// FetchPage pins and returns the frame holding pid, loading it from
// disk if necessary. Callers must call UnpinPage exactly once per
// successful FetchPage/NewPage.
func (m *Manager) FetchPage(pid uint32) (*Frame, error) {
	m.mu.Lock()
	if idx, ok := m.table[pid]; ok {
		f := m.frames[idx]
		f.pinCount++
		m.replacer.RecordAccess(idx)
		m.replacer.SetEvictable(idx, false)
		m.mu.Unlock()
		return f, nil
	}

	idx, evictedPid, evictedDirty, err := m.claimFrameLocked()
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	f := m.frames[idx]
	// Pin immediately so nobody else's bookkeeping can touch this frame
	// while we perform I/O with the pool lock released.
	f.pinCount = 1
	m.mu.Unlock()

	if evictedPid != disk.InvalidPageID && evictedDirty {
		f.Lock()
		writeErr := m.disk.WritePage(evictedPid, f.buf)
		f.Unlock()
		if writeErr != nil {
			m.abandonClaim(idx)
			return nil, dberr.WrapIO("flush victim before fetch", evictedPid, writeErr)
		}
	}

	buf, err := m.disk.ReadPage(pid)
	if err != nil {
		m.abandonClaim(idx)
		return nil, dberr.WrapIO("fetch", pid, err)
	}

	f.Lock()
	copy(f.buf, buf)
	f.pageID = pid
	f.dirty = false
	f.Unlock()

	m.mu.Lock()
	m.table[pid] = idx
	m.replacer.RecordAccess(idx)
	m.replacer.SetEvictable(idx, false)
	m.mu.Unlock()

	return f, nil
}

// NewPage allocates a fresh page id via the disk manager, claims a
// frame for it, zero-fills the frame, and returns it pinned.
func (m *Manager) NewPage() (uint32, *Frame, error) {
	pid, err := m.disk.AllocatePage()
	if err != nil {
		return 0, nil, dberr.WrapIO("allocate", 0, err)
	}

	m.mu.Lock()
	idx, evictedPid, evictedDirty, err := m.claimFrameLocked()
	if err != nil {
		m.mu.Unlock()
		return 0, nil, err
	}
	f := m.frames[idx]
	f.pinCount = 1
	m.mu.Unlock()

	if evictedPid != disk.InvalidPageID && evictedDirty {
		f.Lock()
		writeErr := m.disk.WritePage(evictedPid, f.buf)
		f.Unlock()
		if writeErr != nil {
			m.abandonClaim(idx)
			return 0, nil, dberr.WrapIO("flush victim before new page", evictedPid, writeErr)
		}
	}

	f.Lock()
	for i := range f.buf {
		f.buf[i] = 0
	}
	f.pageID = pid
	f.dirty = false
	f.Unlock()

	m.mu.Lock()
	m.table[pid] = idx
	m.replacer.RecordAccess(idx)
	m.replacer.SetEvictable(idx, false)
	m.mu.Unlock()

	return pid, f, nil
}

// claimFrameLocked picks a frame for a page about to be loaded, either
// from the free list or by evicting an unpinned frame. Must be called
// with m.mu held; returns the chosen frame's previous occupant (if
// any) so the caller can flush it after releasing the lock.
func (m *Manager) claimFrameLocked() (idx int, evictedPid uint32, evictedDirty bool, err error) {
	if n := len(m.free); n > 0 {
		idx = m.free[n-1]
		m.free = m.free[:n-1]
		return idx, disk.InvalidPageID, false, nil
	}

	idx, ok := m.replacer.Evict()
	if !ok {
		return 0, 0, false, dberr.ErrBufferPoolExhausted
	}
	f := m.frames[idx]
	evictedPid = f.pageID
	evictedDirty = f.dirty
	delete(m.table, evictedPid)
	return idx, evictedPid, evictedDirty, nil
}

// abandonClaim restores a frame to the free list after a failed I/O
// operation during FetchPage/NewPage, so the pool does not leak a
// permanently-unusable frame.
func (m *Manager) abandonClaim(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.frames[idx]
	f.pageID = disk.InvalidPageID
	f.pinCount = 0
	f.dirty = false
	m.replacer.Remove(idx)
	m.free = append(m.free, idx)
}

// UnpinPage decrements pid's pin count and OR-merges the dirty flag.
// When the pin count reaches zero the frame becomes evictable.
func (m *Manager) UnpinPage(pid uint32, isDirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.table[pid]
	if !ok {
		return fmt.Errorf("storage: unpin of page %d not resident in pool", pid)
	}
	f := m.frames[idx]
	if f.pinCount == 0 {
		return fmt.Errorf("storage: unpin of page %d with pin count already zero", pid)
	}
	f.pinCount--
	if isDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		m.replacer.SetEvictable(idx, true)
	}
	return nil
}

// FlushPage writes pid to disk if it is resident and dirty.
func (m *Manager) FlushPage(pid uint32) error {
	m.mu.Lock()
	idx, ok := m.table[pid]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	f := m.frames[idx]
	m.mu.Unlock()

	f.RLock()
	defer f.RUnlock()
	if !f.dirty {
		return nil
	}
	if err := m.disk.WritePage(pid, f.buf); err != nil {
		return dberr.WrapIO("flush", pid, err)
	}
	f.dirty = false
	return nil
}

// FlushAllPages writes every dirty resident page to disk. Used by the
// background Flusher and by an explicit checkpoint request.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	pids := make([]uint32, 0, len(m.table))
	for pid := range m.table {
		pids = append(pids, pid)
	}
	m.mu.Unlock()

	for _, pid := range pids {
		if err := m.FlushPage(pid); err != nil {
			return err
		}
	}
	return nil
}

// DeletePage removes pid from the pool, provided it is unpinned. The
// frame returns to the free list; the backing-file space for pid is
// not reclaimed (spec.md §3 Lifecycle, §9 open question 4).
func (m *Manager) DeletePage(pid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, ok := m.table[pid]
	if !ok {
		return nil
	}
	f := m.frames[idx]
	if f.pinCount > 0 {
		return fmt.Errorf("storage: cannot delete pinned page %d (pin count %d)", pid, f.pinCount)
	}
	delete(m.table, pid)
	m.replacer.Remove(idx)
	f.pageID = disk.InvalidPageID
	f.dirty = false
	m.free = append(m.free, idx)
	return nil
}

// ID identifies this buffer pool instance for log correlation.
func (m *Manager) ID() uuid.UUID { return m.id }

func (m *Manager) logf(format string, args ...any) {
	log.Printf("buffer[%s]: "+format, append([]any{m.id}, args...)...)
}
