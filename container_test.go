package sfs

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// syntheticContainer lays out the smallest possible container by hand:
// chunk 4 is the sole directory-tree chunk (one entry), chunk 5 is that
// entry's FileChunk, chunk 6 is its sole FileDataChunk. Chunks 0-3 stay
// reserved and untouched.
type syntheticContainer struct {
	store *memStore
}

func newSyntheticContainer(t *testing.T, totalChunks int32) *syntheticContainer {
	t.Helper()
	store := newMemStore(t)
	if err := store.Truncate(int64(totalChunks)*ChunkSize + prologueSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	return &syntheticContainer{store: store}
}

func (s *syntheticContainer) writeHeader(t *testing.T, treeOffset int32, nEntr, nChunks uint32) {
	t.Helper()
	buf := make([]byte, headerSize)
	copy(buf[0:8], headerMagicA)
	copy(buf[280:288], headerMagicB)
	binary.LittleEndian.PutUint32(buf[296:300], ChunkSize)
	binary.LittleEndian.PutUint32(buf[320:324], uint32(treeOffset))
	binary.LittleEndian.PutUint32(buf[324:328], nEntr)
	binary.LittleEndian.PutUint32(buf[328:332], nChunks)
	if n, err := s.store.WriteAt(buf, 0); err != nil || n != len(buf) {
		t.Fatalf("WriteAt(header): n=%d err=%v", n, err)
	}
}

func (s *syntheticContainer) bd() *BlockDevice { return NewBlockDevice(s.store) }

// writeOneFileContainer builds a 7-chunk container (reserved 0-3, dir tree
// at 4, one FileChunk at 5, one FileDataChunk at 6) holding a single file.
// If password is non-nil, the data chunk is encrypted and the FileHeader's
// encrypted-key field is populated accordingly.
func writeOneFileContainer(t *testing.T, data []byte, password []byte, name string) *syntheticContainer {
	t.Helper()
	sc := newSyntheticContainer(t, 7)
	bd := sc.bd()

	onDisk := data
	plain := make([]byte, chunkPayloadSize)
	copy(plain, onDisk)

	var flags uint32 = dataChunkFlagBase
	var encKey [32]byte
	payload := plain
	if password != nil {
		passKey := explodeKey(password)
		plainKey := bytes.Repeat([]byte{0x11}, 32)
		ek, err := chainEncrypt(plainKey, passKey[:])
		if err != nil {
			t.Fatalf("chainEncrypt(plainKey): %v", err)
		}
		copy(encKey[:], ek)

		dataKey := explodeKey(append(append([]byte(nil), plainKey...), 0x00))
		ct, err := chainEncrypt(plain, dataKey[:])
		if err != nil {
			t.Fatalf("chainEncrypt(payload): %v", err)
		}
		payload = ct
		flags |= dataChunkFlagEncrypted
	}

	dc := &FileDataChunk{Index: 6, Q: -1, Flags: flags, Payload: payload}
	if err := bd.PutChunk(6, dc.Serialize()); err != nil {
		t.Fatalf("PutChunk(6): %v", err)
	}

	fc := &FileChunk{Index: 5, NextChunk: -1, Slots: make([]int32, slotsPerFileChunk)}
	fc.Slots[0] = 6
	if err := bd.PutChunk(5, fc.Serialize()); err != nil {
		t.Fatalf("PutChunk(5): %v", err)
	}

	fh := &FileHeader{Offset: 5, Size: uint64(len(data)), EncKey: encKey}
	fh.SetName(name)

	dt := &DirectoryTreeChunk{Index: 4, NextChunk: -1, Payload: make([]byte, ChunkSize-dirTreeHeaderSize)}
	copy(dt.EntrySlice(0), fh.Bytes())
	if err := bd.PutChunk(4, dt.Serialize()); err != nil {
		t.Fatalf("PutChunk(4): %v", err)
	}

	sc.writeHeader(t, 4, 1, 7)
	return sc
}

func TestContainer_OpenAndFiles(t *testing.T) {
	sc := writeOneFileContainer(t, []byte("hello, container"), nil, "greeting.txt")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	files, err := c.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("Files() returned %d entries, want 1", len(files))
	}
	if files[0].Name() != "greeting.txt" {
		t.Errorf("Name() = %q, want %q", files[0].Name(), "greeting.txt")
	}
}

func TestContainer_ReadFile_Plaintext(t *testing.T) {
	data := []byte("hello, container")
	sc := writeOneFileContainer(t, data, nil, "greeting.txt")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, _ := c.Files()

	got, err := c.ReadFile(files[0], nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadFile = %q, want %q", got, data)
	}
}

func TestContainer_ReadFile_Encrypted(t *testing.T) {
	data := []byte("a secret payload")
	password := []byte("45654hKL5-GFD1326lvmaQQ")
	sc := writeOneFileContainer(t, data, password, "secret.bin")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, _ := c.Files()

	got, err := c.ReadFile(files[0], password)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadFile = %q, want %q", got, data)
	}
}

func TestContainer_ReadFile_Compressed(t *testing.T) {
	raw := bytes.Repeat([]byte("compress me please. "), 10)
	wrapped, err := WrapAACS(raw, 1)
	if err != nil {
		t.Fatalf("WrapAACS: %v", err)
	}
	if len(wrapped) > chunkPayloadSize {
		t.Fatalf("test setup: wrapped payload %d bytes exceeds one data chunk", len(wrapped))
	}

	sc := writeOneFileContainer(t, wrapped, nil, "doc.xml")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, _ := c.Files()

	got, err := c.ReadFile(files[0], nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("ReadFile (compressed) = %q, want %q", got, raw)
	}
}

// P2: read_file(write_file(f, x)) == x when x fits the existing chunk
// count.
func TestContainer_WriteFile_RoundTrip(t *testing.T) {
	sc := writeOneFileContainer(t, []byte("original content"), nil, "file.txt")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, err := c.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	newData := []byte("replacement content, still short")
	if err := c.WriteFile(files[0], newData, nil, -1); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Re-open to make sure the change was actually persisted to the
	// backing store, not just held in memory.
	c2, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open (after write): %v", err)
	}
	files2, err := c2.Files()
	if err != nil {
		t.Fatalf("Files (after write): %v", err)
	}
	if files2[0].Size != uint64(len(newData)) {
		t.Errorf("FileHeader.Size after WriteFile = %d, want %d", files2[0].Size, len(newData))
	}

	got, err := c2.ReadFile(files2[0], nil)
	if err != nil {
		t.Fatalf("ReadFile (after write): %v", err)
	}
	if !bytes.Equal(got, newData) {
		t.Errorf("ReadFile(WriteFile(f, x)) = %q, want %q", got, newData)
	}
}

func TestContainer_WriteFile_EncryptedRoundTrip(t *testing.T) {
	password := []byte("45654hKL5-GFD1326lvmaQQ")
	sc := writeOneFileContainer(t, []byte("initial secret"), password, "secret.bin")

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, _ := c.Files()

	newData := []byte("a brand new secret value")
	if err := c.WriteFile(files[0], newData, password, -1); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := c.ReadFile(files[0], password)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, newData) {
		t.Errorf("ReadFile(WriteFile(f, x), password) = %q, want %q", got, newData)
	}
}

func TestContainer_WriteFile_RejectsGrowthBeyondSlots(t *testing.T) {
	sc := writeOneFileContainer(t, []byte("short"), nil, "file.txt")
	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	files, _ := c.Files()

	tooBig := bytes.Repeat([]byte{0x01}, 2*chunkPayloadSize+1)
	err = c.WriteFile(files[0], tooBig, nil, -1)
	if err == nil {
		t.Fatal("expected a GrowthError for a payload needing more data chunks than available")
	}
	if !IsGrowthError(err) {
		t.Errorf("expected a GrowthError, got %T: %v", err, err)
	}
}

// P3: truncate is idempotent: applying it twice yields identical files.
func TestContainer_Truncate_Idempotent(t *testing.T) {
	sc := newSyntheticContainer(t, 10) // 3 extra unreferenced chunks at the tail
	bd := sc.bd()

	data := []byte("kept")
	plain := make([]byte, chunkPayloadSize)
	copy(plain, data)
	dc := &FileDataChunk{Index: 6, Q: -1, Flags: dataChunkFlagBase, Payload: plain}
	if err := bd.PutChunk(6, dc.Serialize()); err != nil {
		t.Fatalf("PutChunk(6): %v", err)
	}

	fc := &FileChunk{Index: 5, NextChunk: -1, Slots: make([]int32, slotsPerFileChunk)}
	fc.Slots[0] = 6
	if err := bd.PutChunk(5, fc.Serialize()); err != nil {
		t.Fatalf("PutChunk(5): %v", err)
	}

	fh := &FileHeader{Offset: 5, Size: uint64(len(data))}
	fh.SetName("kept.txt")
	dt := &DirectoryTreeChunk{Index: 4, NextChunk: -1, Payload: make([]byte, ChunkSize-dirTreeHeaderSize)}
	copy(dt.EntrySlice(0), fh.Bytes())
	if err := bd.PutChunk(4, dt.Serialize()); err != nil {
		t.Fatalf("PutChunk(4): %v", err)
	}

	sc.writeHeader(t, 4, 1, 10)

	c, err := Open(sc.store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	end, err := c.bd.EndChunk()
	if err != nil {
		t.Fatalf("EndChunk: %v", err)
	}
	if end != 7 {
		t.Errorf("EndChunk() after Truncate = %d, want 7 (chunks 7,8,9 unreferenced)", end)
	}

	sizeAfterFirst, err := sc.store.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	if err := c.Truncate(); err != nil {
		t.Fatalf("second Truncate: %v", err)
	}
	sizeAfterSecond, err := sc.store.Size()
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if sizeAfterFirst != sizeAfterSecond {
		t.Errorf("Truncate is not idempotent: size %d != %d", sizeAfterFirst, sizeAfterSecond)
	}

	files, err := c.Files()
	if err != nil {
		t.Fatalf("Files (after truncate): %v", err)
	}
	got, err := c.ReadFile(files[0], nil)
	if err != nil {
		t.Fatalf("ReadFile (after truncate): %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadFile after truncate = %q, want %q", got, data)
	}
}

func TestOpen_RejectsBadMagic(t *testing.T) {
	sc := newSyntheticContainer(t, 4)
	buf := make([]byte, headerSize)
	copy(buf[0:8], "NOTMAGIC")
	if _, err := sc.store.WriteAt(buf, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if _, err := Open(sc.store); err == nil {
		t.Fatal("expected an error opening a container with a bad magic")
	}
}
