package sfs

import (
	"fmt"
	"io"
)

// Container is the public entry point: open a backing store, walk its
// directory tree, and read or replace individual files. A Container is
// not safe for concurrent use — every operation is synchronous, blocking
// only on the backing store's own I/O, with no internal caching or
// locking (spec.md §5).
type Container struct {
	bd     *BlockDevice
	header *Header
}

// Open reads and validates the 364-byte prologue and binds a Container
// to the given backing store for its lifetime. Closing the store remains
// the caller's responsibility.
func Open(store BackingStore) (*Container, error) {
	buf := make([]byte, headerSize)
	n, err := store.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, newFormatError("header", fmt.Sprintf("failed to read prologue: %v", err))
	}
	if n != headerSize {
		return nil, newFormatError("header", fmt.Sprintf("short read: got %d of %d bytes", n, headerSize))
	}

	h, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}

	return &Container{bd: NewBlockDevice(store), header: h}, nil
}

// Header returns the parsed container prologue.
func (c *Container) Header() *Header {
	return c.header
}

// walkDirectoryTree follows the directory-tree chain from the header's
// tree_offset, parsing every FileHeader record it contains (spec.md
// §4.8.2).
func (c *Container) walkDirectoryTree() ([]*DirectoryTreeChunk, []*FileHeader, error) {
	var chunks []*DirectoryTreeChunk
	var files []*FileHeader

	idx := c.header.TreeOffset
	remaining := c.header.NEntr
	seen := map[int32]bool{}
	var totalParsed uint32

	for idx > 0 {
		if seen[idx] {
			return nil, nil, newCorruptionError(int(idx), "directory tree chunk referenced more than once")
		}
		seen[idx] = true

		buf, err := c.bd.GetChunk(idx)
		if err != nil {
			return nil, nil, err
		}
		d, err := ParseDirectoryTreeChunk(idx, buf)
		if err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, d)

		toRead := remaining
		if toRead > uint32(MaxEntriesPerChunk) {
			toRead = uint32(MaxEntriesPerChunk)
		}

		var consumed uint32
		stoppedEarly := false
		for i := 0; i < int(toRead); i++ {
			rec := d.EntrySlice(i)
			if isAllZero(rec) {
				if !isAllZero(d.Payload[i*fileHeaderSize:]) {
					return nil, nil, newCorruptionError(int(idx), "non-zero bytes after empty directory entry slot")
				}
				stoppedEarly = true
				break
			}
			fh, err := ParseFileHeader(rec)
			if err != nil {
				return nil, nil, err
			}
			if fh.Zero != 0 {
				return nil, nil, newCorruptionError(int(idx), "FileHeader.zero field is non-zero")
			}
			fh.DirChunk = idx
			fh.EntryIndex = i
			files = append(files, fh)
			consumed++
		}
		if !stoppedEarly && !isAllZero(d.Payload[int(toRead)*fileHeaderSize:]) {
			return nil, nil, newCorruptionError(int(idx), "non-zero padding after directory entries")
		}

		totalParsed += consumed
		remaining -= consumed

		next := d.NextChunk
		if remaining == 0 || next <= 0 || next == idx {
			break
		}
		idx = next
	}

	if totalParsed != c.header.NEntr {
		return nil, nil, newCorruptionError(0, fmt.Sprintf("directory tree yielded %d entries, header declares %d", totalParsed, c.header.NEntr))
	}

	return chunks, files, nil
}

// Tree returns every chunk of the directory-tree chain, in chain order.
func (c *Container) Tree() ([]*DirectoryTreeChunk, error) {
	chunks, _, err := c.walkDirectoryTree()
	return chunks, err
}

// Files returns every FileHeader in the directory tree, in chain order.
// Each returned FileHeader remembers which directory-tree chunk and
// entry slot it came from, so it can be passed back to WriteFile.
func (c *Container) Files() ([]*FileHeader, error) {
	_, files, err := c.walkDirectoryTree()
	return files, err
}

// enumerateFileChunks follows a file's FileChunk chain starting at
// startIdx (spec.md §4.8.3). A startIdx <= 0 means the file has no data
// and yields an empty chain.
func (c *Container) enumerateFileChunks(startIdx int32) ([]*FileChunk, error) {
	var chain []*FileChunk
	if startIdx <= 0 {
		return chain, nil
	}

	idx := startIdx
	seen := map[int32]bool{}
	for idx > 0 {
		if seen[idx] {
			return nil, newCorruptionError(int(idx), "FileChunk referenced more than once")
		}
		seen[idx] = true

		buf, err := c.bd.GetChunk(idx)
		if err != nil {
			return nil, err
		}
		fc, err := ParseFileChunk(idx, buf)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fc)

		if fc.NextChunk <= 0 {
			break
		}
		idx = fc.NextChunk
	}
	return chain, nil
}

// FileChunks returns the FileChunk chain for fh, in chain order.
func (c *Container) FileChunks(fh *FileHeader) ([]*FileChunk, error) {
	return c.enumerateFileChunks(fh.Offset)
}

// ReadFile reconstructs a file's logical content: concatenate every
// FileDataChunk payload across the file's FileChunk chain, decrypt the
// chunks flagged encrypted when a password is supplied, then unwrap an
// AACS envelope if present (spec.md §4.8.4).
func (c *Container) ReadFile(fh *FileHeader, password []byte) ([]byte, error) {
	chain, err := c.enumerateFileChunks(fh.Offset)
	if err != nil {
		return nil, err
	}

	var key *[32]byte
	if password != nil {
		k, err := decryptKey(fh.EncKey[:], password)
		if err != nil {
			return nil, err
		}
		key = &k
	}

	var raw []byte
	for _, fc := range chain {
		for _, dIdx := range fc.DChunks() {
			buf, err := c.bd.GetChunk(dIdx)
			if err != nil {
				return nil, err
			}
			dc, err := ParseFileDataChunk(dIdx, buf)
			if err != nil {
				return nil, err
			}

			payload := dc.Payload
			if dc.Encrypted() && key != nil {
				plain, err := chainDecrypt(payload, key[:])
				if err != nil {
					return nil, newAuthenticationError("chunk decryption failed", err)
				}
				payload = plain
			}
			raw = append(raw, payload...)
		}
	}

	if HasAACSEnvelope(raw) {
		return UnwrapAACS(raw)
	}

	if uint64(len(raw)) < fh.Size {
		return nil, newCorruptionError(0, "reconstructed payload shorter than FileHeader.size")
	}
	for _, b := range raw[fh.Size:] {
		if b != 0 {
			return nil, newCorruptionError(0, "non-zero bytes past FileHeader.size")
		}
	}
	return raw[:fh.Size], nil
}

// chunkPayloadSize is the number of payload bytes per FileDataChunk,
// after its 32-byte header.
const chunkPayloadSize = ChunkSize - dataChunkHeaderSize

// WriteFile replaces fh's data in place (spec.md §4.8.5). It never grows
// the file: if the new content needs more data chunks than fh's
// FileChunk currently has slots for, it fails with a GrowthError.
// compressionLevel selects the write-side AACS wrapping: 1 wraps the
// payload with the zlib envelope (the only level this format can
// produce); any value < 0 stores the payload unwrapped. Any other value
// is rejected, matching the read-path's broader level support not being
// available for writes (spec.md §4.7, §9).
func (c *Container) WriteFile(fh *FileHeader, data []byte, password []byte, compressionLevel int) error {
	if fh.Offset <= 0 {
		return newUnsupportedError("write_file requires a FileHeader with an existing data chain")
	}

	chain, err := c.enumerateFileChunks(fh.Offset)
	if err != nil {
		return err
	}
	if len(chain) != 1 {
		return newUnsupportedError("write_file only supports a single FileChunk (next_chunk == -1)")
	}
	fc := chain[0]
	if fc.NextChunk != -1 {
		return newUnsupportedError("FileChunk.next_chunk != -1 is not implemented for write")
	}

	var onDisk []byte
	switch {
	case compressionLevel == 1:
		wrapped, err := WrapAACS(data, 1)
		if err != nil {
			return err
		}
		onDisk = wrapped
	case compressionLevel < 0:
		onDisk = data
	default:
		return newUnsupportedError(fmt.Sprintf("compression level %d not supported for write", compressionLevel))
	}

	var key *[32]byte
	if password != nil {
		k, err := decryptKey(fh.EncKey[:], password)
		if err != nil {
			return err
		}
		key = &k
	}

	chunks := chunkPayload(onDisk)
	existing := fc.DChunks()
	if len(chunks) > len(existing) {
		return newGrowthError(len(chunks), len(existing))
	}

	for i, plain := range chunks {
		payload := plain
		flags := uint32(dataChunkFlagBase)
		if key != nil {
			enc, err := chainEncrypt(plain, key[:])
			if err != nil {
				return err
			}
			payload = enc
			flags |= dataChunkFlagEncrypted
		}

		dc := &FileDataChunk{
			Index:   existing[i],
			Q:       -1,
			Flags:   flags,
			Payload: payload,
		}
		if err := c.bd.PutChunk(existing[i], dc.Serialize()); err != nil {
			return err
		}
	}

	if len(chunks) < len(existing) {
		released := existing[len(chunks):]
		releasedSet := make(map[int32]bool, len(released))
		for _, idx := range released {
			releasedSet[idx] = true
		}
		for i, slot := range fc.Slots {
			if releasedSet[slot] {
				fc.Slots[i] = 0
			}
		}
		if err := c.bd.PutChunk(fc.Index, fc.Serialize()); err != nil {
			return err
		}
	}

	fh.Size = uint64(len(data))
	if err := c.rewriteFileHeader(fh); err != nil {
		return err
	}

	return nil
}

// chunkPayload splits data into chunkPayloadSize-byte pieces, zero-padding
// the final piece.
func chunkPayload(data []byte) [][]byte {
	if len(data) == 0 {
		return nil
	}
	n := (len(data) + chunkPayloadSize - 1) / chunkPayloadSize
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		piece := make([]byte, chunkPayloadSize)
		copy(piece, data[i*chunkPayloadSize:min(len(data), (i+1)*chunkPayloadSize)])
		out[i] = piece
	}
	return out
}

// rewriteFileHeader writes fh's owning directory-tree chunk back to
// disk after an in-place FileHeader update (spec.md §4.8.5 step 3).
func (c *Container) rewriteFileHeader(fh *FileHeader) error {
	buf, err := c.bd.GetChunk(fh.DirChunk)
	if err != nil {
		return err
	}
	d, err := ParseDirectoryTreeChunk(fh.DirChunk, buf)
	if err != nil {
		return err
	}
	copy(d.EntrySlice(fh.EntryIndex), fh.Bytes())
	return c.bd.PutChunk(fh.DirChunk, d.Serialize())
}

// Truncate drops contiguous unreferenced chunks at the tail of the
// backing store (spec.md §4.8.6). It is idempotent: a second call on an
// already-truncated container is a no-op.
func (c *Container) Truncate() error {
	reachable := map[int32]bool{0: true, 1: true, 2: true, 3: true}
	mark := func(idx int32) error {
		if reachable[idx] {
			return newCorruptionError(int(idx), "chunk referenced more than once")
		}
		reachable[idx] = true
		return nil
	}

	dirChunks, files, err := c.walkDirectoryTree()
	if err != nil {
		return err
	}
	for _, d := range dirChunks {
		if err := mark(d.Index); err != nil {
			return err
		}
	}

	for _, fh := range files {
		chain, err := c.enumerateFileChunks(fh.Offset)
		if err != nil {
			return err
		}
		for _, fc := range chain {
			if err := mark(fc.Index); err != nil {
				return err
			}
			for _, dIdx := range fc.DChunks() {
				if err := mark(dIdx); err != nil {
					return err
				}
			}
		}
	}

	lastChunk, err := c.bd.EndChunk()
	if err != nil {
		return err
	}

	empty := map[int32]bool{}
	for i := int32(0); i < lastChunk; i++ {
		if !reachable[i] {
			empty[i] = true
		}
	}

	for lastChunk > 0 && empty[lastChunk-1] {
		lastChunk--
		delete(empty, lastChunk)
	}

	return c.bd.TruncateTo(lastChunk)
}
