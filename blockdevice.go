package sfs

import (
	"fmt"
	"io"
)

// ChunkSize is the only chunk size the format supports (spec.md
// invariant I1). Creating free chunks beyond the current end-of-file, or
// using any other chunk size, is explicitly out of scope (spec.md §1).
const ChunkSize = 4096

// prologueSize is the number of bytes preceding chunk 0's offset (chunk c
// starts at c*ChunkSize + prologueSize): the 280-byte fixed prefix that
// the 364-byte Header read overlaps (spec.md §6).
const prologueSize = 280

// BackingStore is the seekable, byte-addressed store a Container binds
// to for its lifetime (spec.md §1, §5). Neither *os.File nor absfs.File
// has a Size method, so either needs a thin wrapper that derives Size
// from Stat; this package's tests wrap a github.com/absfs/memfs file that
// way as an in-memory stand-in for an open OS file.
type BackingStore interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Size() (int64, error)
}

// BlockDevice reads and writes fixed-size chunks at absolute offsets over
// a BackingStore. It has no notion of directory trees, file chains, or
// encryption — those live in higher layers. No internal caching: every
// get_chunk is a fresh read, every put_chunk a fresh write (spec.md §5).
type BlockDevice struct {
	store BackingStore
}

// NewBlockDevice wraps a BackingStore for chunked access.
func NewBlockDevice(store BackingStore) *BlockDevice {
	return &BlockDevice{store: store}
}

// chunkOffset returns the byte offset of chunk index c.
func chunkOffset(c int32) int64 {
	return int64(c)*ChunkSize + prologueSize
}

// GetChunk reads the full ChunkSize-byte chunk at index c.
func (bd *BlockDevice) GetChunk(c int32) ([]byte, error) {
	if err := validateChunkIndex("get_chunk", c); err != nil {
		return nil, err
	}

	buf := make([]byte, ChunkSize)
	n, err := bd.store.ReadAt(buf, chunkOffset(c))
	if err != nil && err != io.EOF {
		return nil, newChunkError("get_chunk", int(c), "read failed", err)
	}
	if n != ChunkSize {
		return nil, newChunkError("get_chunk", int(c), fmt.Sprintf("short read: got %d of %d bytes", n, ChunkSize), ErrOutOfRange)
	}
	return buf, nil
}

// PutChunk writes buf, which must be exactly ChunkSize bytes, at chunk
// index c.
func (bd *BlockDevice) PutChunk(c int32, buf []byte) error {
	if err := validateChunkIndex("put_chunk", c); err != nil {
		return err
	}
	if err := validateChunkBuffer(buf); err != nil {
		return err
	}

	n, err := bd.store.WriteAt(buf, chunkOffset(c))
	if err != nil {
		return newChunkError("put_chunk", int(c), "write failed", err)
	}
	if n != ChunkSize {
		return newChunkError("put_chunk", int(c), fmt.Sprintf("short write: wrote %d of %d bytes", n, ChunkSize), ErrSizeMismatch)
	}
	return nil
}

// EndChunk returns one past the last valid chunk index: the total chunk
// count reachable in the backing store. The store length must land
// exactly on a chunk boundary past the prologue (spec.md §4.1).
func (bd *BlockDevice) EndChunk() (int32, error) {
	lastByte, err := bd.store.Size()
	if err != nil {
		return 0, newChunkError("end_chunk", 0, "failed to stat backing store", err)
	}
	rem := (lastByte - prologueSize) % ChunkSize
	if rem != 0 {
		return 0, newCorruptionError(0, fmt.Sprintf("backing store length %d does not land on a chunk boundary", lastByte))
	}
	return int32((lastByte - prologueSize) / ChunkSize), nil
}

// TruncateTo sets the backing store length so that chunk c becomes the
// new end-of-file (i.e. chunks 0..c-1 remain addressable).
func (bd *BlockDevice) TruncateTo(c int32) error {
	size := int64(c)*ChunkSize + prologueSize
	if err := bd.store.Truncate(size); err != nil {
		return newChunkError("truncate_to", int(c), "truncate failed", err)
	}
	return nil
}
