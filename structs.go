package sfs

import (
	"encoding/binary"
	"fmt"
)

// Fixed-layout parsers and serializers for the on-disk structures
// (spec.md §3). Every struct here is a transient view over a byte slice
// taken from a chunk or the header prologue — the backing store owns all
// chunk bytes; these are just typed windows onto them, in the same spirit
// as chunk_format.go's WriteTo/ReadFrom pairs in the teacher package, but
// operating on whole in-memory chunk slices rather than streaming
// io.Reader/io.Writer since BlockDevice already hands back complete
// chunk-sized buffers.

const (
	headerSize        = 364
	headerMagicA       = "AAMVHFSS"
	headerMagicB       = "AASFSSGN"
	dirTreeHeaderSize = 32
	fileHeaderSize    = 512
	fileChunkSize     = 32
	dataChunkHeaderSize = 32
	filenameFieldSize = 288
)

// Header is the 364-byte container prologue at file offset 0.
type Header struct {
	Opaque1     [272]byte
	CSC         uint32
	OOF         uint32
	ChunkSize   uint32
	OpaqueABCDE [5]uint32
	TreeOffset  int32
	NEntr       uint32
	NChunks     uint32
	Key         [32]byte
}

// ParseHeader parses the fixed 364-byte prologue.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) != headerSize {
		return nil, newFormatError("header", fmt.Sprintf("expected %d bytes, got %d", headerSize, len(buf)))
	}
	if string(buf[0:8]) != headerMagicA {
		return nil, newFormatError("magic_a", "missing AAMVHFSS magic")
	}
	if string(buf[280:288]) != headerMagicB {
		return nil, newFormatError("magic_b", "missing AASFSSGN magic")
	}

	h := &Header{}
	copy(h.Opaque1[:], buf[8:280])
	h.CSC = binary.LittleEndian.Uint32(buf[288:292])
	h.OOF = binary.LittleEndian.Uint32(buf[292:296])
	h.ChunkSize = binary.LittleEndian.Uint32(buf[296:300])
	for i := 0; i < 5; i++ {
		h.OpaqueABCDE[i] = binary.LittleEndian.Uint32(buf[300+4*i : 304+4*i])
	}
	h.TreeOffset = int32(binary.LittleEndian.Uint32(buf[320:324]))
	h.NEntr = binary.LittleEndian.Uint32(buf[324:328])
	h.NChunks = binary.LittleEndian.Uint32(buf[328:332])
	copy(h.Key[:], buf[332:364])

	if err := validateChunkSize(h.ChunkSize); err != nil {
		return nil, err
	}

	return h, nil
}

// DirectoryTreeChunk is one chunk of the directory tree chain.
type DirectoryTreeChunk struct {
	Index     int32
	NextChunk int32
	XOR       uint32
	Opaque    [6]uint32
	// Payload holds the chunk_size-32 bytes following the header: a
	// dense array of 512-byte FileHeader records followed by zero
	// padding, preserved verbatim so a rewrite doesn't disturb
	// padding bytes it didn't need to touch.
	Payload []byte
}

// ParseDirectoryTreeChunk parses a 4096-byte directory-tree chunk read
// from index idx, validating its XOR checksum (invariant I3).
func ParseDirectoryTreeChunk(idx int32, buf []byte) (*DirectoryTreeChunk, error) {
	if len(buf) != ChunkSize {
		return nil, newChunkError("parse_dir_tree", int(idx), "chunk is not chunk_size bytes", ErrSizeMismatch)
	}

	d := &DirectoryTreeChunk{Index: idx}
	d.NextChunk = int32(binary.LittleEndian.Uint32(buf[0:4]))
	d.XOR = binary.LittleEndian.Uint32(buf[4:8])
	for i := 0; i < 6; i++ {
		d.Opaque[i] = binary.LittleEndian.Uint32(buf[8+4*i : 12+4*i])
	}
	d.Payload = append([]byte(nil), buf[dirTreeHeaderSize:]...)

	if xor32(d.Payload) != d.XOR {
		return nil, newCorruptionError(int(idx), "directory tree XOR mismatch")
	}
	return d, nil
}

// Serialize recomputes the payload XOR and returns the full chunk_size
// chunk ready for PutChunk.
func (d *DirectoryTreeChunk) Serialize() []byte {
	d.XOR = xor32(d.Payload)

	buf := make([]byte, ChunkSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(d.NextChunk))
	binary.LittleEndian.PutUint32(buf[4:8], d.XOR)
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint32(buf[8+4*i:12+4*i], d.Opaque[i])
	}
	copy(buf[dirTreeHeaderSize:], d.Payload)
	return buf
}

// MaxEntriesPerChunk is floor((chunk_size-32)/512), the densest packing
// of FileHeader records a directory-tree chunk can hold.
const MaxEntriesPerChunk = (ChunkSize - dirTreeHeaderSize) / fileHeaderSize

// EntrySlice returns the raw 512-byte slice for record i within the
// chunk's payload (shares storage with d.Payload).
func (d *DirectoryTreeChunk) EntrySlice(i int) []byte {
	return d.Payload[i*fileHeaderSize : (i+1)*fileHeaderSize]
}

// isAllZero reports whether buf (a 512-byte record or any payload tail)
// is entirely zero.
func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// FileHeader is one 512-byte directory entry.
type FileHeader struct {
	// DirChunk and EntryIndex locate this record for a later rewrite;
	// they are not part of the on-disk layout.
	DirChunk   int32
	EntryIndex int

	Offset       int32 // first FileChunk index, -1 if no data
	Size         uint64
	TimeCreated  int64 // nanoseconds
	TimeModified int64
	TimeAccessed int64
	FType        uint32
	Parent       int32
	Zero         uint32
	EncKey       [32]byte
	Opaque       [140]byte
	EType        uint32
	filename     [filenameFieldSize]byte
}

// ParseFileHeader parses one 512-byte FileHeader record.
func ParseFileHeader(buf []byte) (*FileHeader, error) {
	if len(buf) != fileHeaderSize {
		return nil, newChunkError("parse_file_header", 0, "record is not 512 bytes", ErrSizeMismatch)
	}
	fh := &FileHeader{}
	fh.Offset = int32(binary.LittleEndian.Uint32(buf[0:4]))
	fh.Size = binary.LittleEndian.Uint64(buf[4:12])
	fh.TimeCreated = int64(binary.LittleEndian.Uint64(buf[12:20]))
	fh.TimeModified = int64(binary.LittleEndian.Uint64(buf[20:28]))
	fh.TimeAccessed = int64(binary.LittleEndian.Uint64(buf[28:36]))
	fh.FType = binary.LittleEndian.Uint32(buf[36:40])
	fh.Parent = int32(binary.LittleEndian.Uint32(buf[40:44]))
	fh.Zero = binary.LittleEndian.Uint32(buf[44:48])
	copy(fh.EncKey[:], buf[48:80])
	copy(fh.Opaque[:], buf[80:220])
	fh.EType = binary.LittleEndian.Uint32(buf[220:224])
	copy(fh.filename[:], buf[224:512])
	return fh, nil
}

// Name returns the NUL-terminated filename as a Go string.
func (fh *FileHeader) Name() string {
	n := 0
	for n < len(fh.filename) && fh.filename[n] != 0 {
		n++
	}
	return string(fh.filename[:n])
}

// SetName sets the filename field, NUL-padding (or truncating) to 288
// bytes.
func (fh *FileHeader) SetName(name string) {
	var buf [filenameFieldSize]byte
	copy(buf[:], name)
	fh.filename = buf
}

// Bytes serializes the FileHeader back into a 512-byte record.
func (fh *FileHeader) Bytes() []byte {
	buf := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(fh.Offset))
	binary.LittleEndian.PutUint64(buf[4:12], fh.Size)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(fh.TimeCreated))
	binary.LittleEndian.PutUint64(buf[20:28], uint64(fh.TimeModified))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(fh.TimeAccessed))
	binary.LittleEndian.PutUint32(buf[36:40], fh.FType)
	binary.LittleEndian.PutUint32(buf[40:44], uint32(fh.Parent))
	binary.LittleEndian.PutUint32(buf[44:48], fh.Zero)
	copy(buf[48:80], fh.EncKey[:])
	copy(buf[80:220], fh.Opaque[:])
	binary.LittleEndian.PutUint32(buf[220:224], fh.EType)
	copy(buf[224:512], fh.filename[:])
	return buf
}

// FileChunk is one file-index block: a chain link plus a dense list of
// data-chunk slots (spec.md §3).
type FileChunk struct {
	Index     int32
	NextChunk int32
	Opaque    [7]uint32
	Slots     []int32
}

// slotsPerFileChunk is the number of i32 slots following the 32-byte
// FileChunk header.
const slotsPerFileChunk = (ChunkSize - fileChunkSize) / 4

// ParseFileChunk parses a 4096-byte FileChunk read from index idx.
func ParseFileChunk(idx int32, buf []byte) (*FileChunk, error) {
	if len(buf) != ChunkSize {
		return nil, newChunkError("parse_file_chunk", int(idx), "chunk is not chunk_size bytes", ErrSizeMismatch)
	}
	fc := &FileChunk{Index: idx}
	fc.NextChunk = int32(binary.LittleEndian.Uint32(buf[0:4]))
	for i := 0; i < 7; i++ {
		fc.Opaque[i] = binary.LittleEndian.Uint32(buf[4+4*i : 8+4*i])
	}
	fc.Slots = make([]int32, slotsPerFileChunk)
	for i := 0; i < slotsPerFileChunk; i++ {
		off := fileChunkSize + 4*i
		fc.Slots[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
	return fc, nil
}

// DChunks returns the positive subsequence of Slots: the actual data
// chunk indices belonging to the file.
func (fc *FileChunk) DChunks() []int32 {
	var out []int32
	for _, s := range fc.Slots {
		if s > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Serialize returns the full chunk_size chunk ready for PutChunk.
func (fc *FileChunk) Serialize() []byte {
	buf := make([]byte, ChunkSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(fc.NextChunk))
	for i := 0; i < 7; i++ {
		binary.LittleEndian.PutUint32(buf[4+4*i:8+4*i], fc.Opaque[i])
	}
	for i, s := range fc.Slots {
		off := fileChunkSize + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(s))
	}
	return buf
}

// FileDataChunk flag bits (spec.md §3).
const (
	dataChunkFlagEncrypted = 0x100
	dataChunkFlagBase      = 0x6
)

// FileDataChunk is one data-carrying chunk of a file.
type FileDataChunk struct {
	Index   int32
	Q       int32
	XOR     uint32
	Flags   uint32
	Opaque  [20]byte
	Payload []byte
}

// ParseFileDataChunk parses a 4096-byte data chunk read from index idx,
// validating its XOR checksum (invariant I2).
func ParseFileDataChunk(idx int32, buf []byte) (*FileDataChunk, error) {
	if len(buf) != ChunkSize {
		return nil, newChunkError("parse_data_chunk", int(idx), "chunk is not chunk_size bytes", ErrSizeMismatch)
	}
	c := &FileDataChunk{Index: idx}
	c.Q = int32(binary.LittleEndian.Uint32(buf[0:4]))
	c.XOR = binary.LittleEndian.Uint32(buf[4:8])
	c.Flags = binary.LittleEndian.Uint32(buf[8:12])
	copy(c.Opaque[:], buf[12:32])
	c.Payload = append([]byte(nil), buf[dataChunkHeaderSize:]...)

	if xor32(c.Payload) != c.XOR {
		return nil, newCorruptionError(int(idx), "data chunk XOR mismatch")
	}
	return c, nil
}

// Encrypted reports whether the chunk's payload is encrypted.
func (c *FileDataChunk) Encrypted() bool {
	return c.Flags&dataChunkFlagEncrypted != 0
}

// Serialize recomputes the payload XOR and returns the full chunk_size
// chunk ready for PutChunk.
func (c *FileDataChunk) Serialize() []byte {
	c.XOR = xor32(c.Payload)

	buf := make([]byte, ChunkSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(c.Q))
	binary.LittleEndian.PutUint32(buf[4:8], c.XOR)
	binary.LittleEndian.PutUint32(buf[8:12], c.Flags)
	copy(buf[12:32], c.Opaque[:])
	copy(buf[dataChunkHeaderSize:], c.Payload)
	return buf
}
