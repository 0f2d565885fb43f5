package sfs

import (
	"os"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

// memStore adapts an absfs.File (here, an in-memory memfs.File, the same
// way the teacher's ChunkedFile wraps one) to the BackingStore interface:
// ReadAt/WriteAt/Truncate pass straight through, Size is derived from
// Stat, the same way an *os.File would be used in production.
type memStore struct {
	f absfs.File
}

func (s *memStore) ReadAt(b []byte, off int64) (int, error)  { return s.f.ReadAt(b, off) }
func (s *memStore) WriteAt(b []byte, off int64) (int, error) { return s.f.WriteAt(b, off) }
func (s *memStore) Truncate(size int64) error                { return s.f.Truncate(size) }

func (s *memStore) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// newMemStore creates a fresh in-memory backing store for tests.
func newMemStore(t *testing.T) *memStore {
	t.Helper()
	base, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	f, err := base.OpenFile("/container.sfs", os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	return &memStore{f: f}
}
