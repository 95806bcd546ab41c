package disk

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestManager_AllocateReadWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	pid0, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	pid1, err := m.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if pid0 != 0 || pid1 != 1 {
		t.Fatalf("expected sequential ids 0,1, got %d,%d", pid0, pid1)
	}

	buf := make([]byte, PageSize)
	copy(buf, []byte("hello page zero"))
	if err := m.WritePage(pid0, buf); err != nil {
		t.Fatal(err)
	}

	got, err := m.ReadPage(pid0)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, buf) {
		t.Fatalf("read back mismatch")
	}

	zero, err := m.ReadPage(pid1)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(zero, make([]byte, PageSize)) {
		t.Fatalf("newly allocated page 1 should be zero-filled")
	}
}

func TestManager_ReopenPreservesNextPageID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")

	m1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m1.AllocatePage(); err != nil {
			t.Fatal(err)
		}
	}
	if err := m1.Close(); err != nil {
		t.Fatal(err)
	}

	m2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer m2.Close()
	pid, err := m2.AllocatePage()
	if err != nil {
		t.Fatal(err)
	}
	if pid != 3 {
		t.Fatalf("expected next page id 3 after reopen, got %d", pid)
	}
}

func TestManager_WritePageRejectsWrongSize(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(filepath.Join(dir, "data.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.WritePage(0, make([]byte, PageSize-1)); err == nil {
		t.Fatal("expected error writing undersized page buffer")
	}
}
