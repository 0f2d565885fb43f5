package sfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// AACS envelope: a fixed 144-byte header wrapping a zlib stream (RFC
// 1950: 2-byte header, DEFLATE body, Adler-32 trailer), recognized by the
// leading magic "AACS" (spec.md §4.7). Compression level 1 is the only
// level this package can produce; level 2 is accepted on read (existing
// containers may carry it) and level 0 means the payload is stored
// as-is, with no zlib wrapper at all.

const (
	aacsMagic      = "AACS"
	aacsHeaderSize = 0x90 // 144 bytes

	aacsLevelIdentity = 0
	aacsLevelDeflate1 = 1
	aacsLevelDeflate2 = 2
)

// HasAACSEnvelope reports whether payload begins with the AACS magic.
func HasAACSEnvelope(payload []byte) bool {
	return len(payload) >= 4 && string(payload[:4]) == aacsMagic
}

// UnwrapAACS decodes an AACS-wrapped payload, returning the decompressed
// (or, for level 0, identity) data.
func UnwrapAACS(payload []byte) ([]byte, error) {
	if len(payload) < aacsHeaderSize {
		return nil, newCorruptionError(0, "AACS payload shorter than the fixed header")
	}
	if string(payload[:4]) != aacsMagic {
		return nil, newFormatError("aacs_magic", "missing AACS magic")
	}

	level := binary.LittleEndian.Uint32(payload[20:24])

	availIn := binary.LittleEndian.Uint32(payload[0x80:0x84])
	inflatedSize := binary.LittleEndian.Uint32(payload[0x84:0x88])
	wantCRC := uint16(binary.LittleEndian.Uint32(payload[0x88:0x8C]))
	p3 := binary.LittleEndian.Uint32(payload[0x8C:0x90])

	if p3 != availIn+16 {
		return nil, newCorruptionError(0, "AACS p3 field does not match avail_in+16")
	}

	streamEnd := aacsHeaderSize + int(availIn)
	if streamEnd > len(payload) {
		return nil, newCorruptionError(0, "AACS avail_in exceeds payload length")
	}
	stream := payload[aacsHeaderSize:streamEnd]

	for _, b := range payload[streamEnd:] {
		if b != 0 {
			return nil, newCorruptionError(0, "non-zero trailing bytes after AACS zlib stream")
		}
	}

	var inflated []byte
	switch level {
	case aacsLevelIdentity:
		inflated = append([]byte(nil), stream...)
	case aacsLevelDeflate1, aacsLevelDeflate2:
		r, err := zlib.NewReader(bytes.NewReader(stream))
		if err != nil {
			return nil, newCorruptionError(0, fmt.Sprintf("zlib header invalid: %v", err))
		}
		defer r.Close()
		inflated, err = io.ReadAll(r)
		if err != nil {
			return nil, newCorruptionError(0, fmt.Sprintf("inflate failed: %v", err))
		}
	default:
		return nil, newUnsupportedError(fmt.Sprintf("compression level %d not supported", level))
	}

	if uint32(len(inflated)) != inflatedSize {
		return nil, newCorruptionError(0, fmt.Sprintf("inflated size %d does not match declared %d", len(inflated), inflatedSize))
	}
	if crc16(inflated, 0) != wantCRC {
		return nil, newCorruptionError(0, "AACS CRC-16 mismatch")
	}

	return inflated, nil
}

// WrapAACS wraps plaintext in an AACS envelope. Only compression level 1
// is implemented for writing (spec.md §4.7, §9).
func WrapAACS(plaintext []byte, level int) ([]byte, error) {
	if level != aacsLevelDeflate1 {
		return nil, newUnsupportedError(fmt.Sprintf("AACS write only supports compression level 1, got %d", level))
	}

	var compressed bytes.Buffer
	w, err := zlib.NewWriterLevel(&compressed, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	stream := compressed.Bytes()
	availIn := uint32(len(stream))

	buf := make([]byte, aacsHeaderSize+len(stream))
	copy(buf[0:4], aacsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], 0x80000)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], 1)
	binary.LittleEndian.PutUint32(buf[16:20], 0x40000000)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(level))
	// bytes 24..0x80 stay zero (header tail).
	binary.LittleEndian.PutUint32(buf[0x80:0x84], availIn)
	binary.LittleEndian.PutUint32(buf[0x84:0x88], uint32(len(plaintext)))
	binary.LittleEndian.PutUint32(buf[0x88:0x8C], uint32(crc16(plaintext, 0)))
	binary.LittleEndian.PutUint32(buf[0x8C:0x90], availIn+16)
	copy(buf[aacsHeaderSize:], stream)

	return buf, nil
}
