package sfs

import "encoding/binary"

// Password key derivation: spiceup (an MD-style length pad into a single
// 512-bit block) followed by one round of a dual-line RIPEMD-256-style
// compression function over a fixed IV. This is a one-shot mixing
// primitive, not a streaming hash API (spec.md §4.5, §9) — callers never
// need more than a single 64-byte block.

// spiceup pads msg into a fixed 64-byte MD-style block: the message
// bytes (truncated to 64), a 0x80 marker byte at offset len(msg) when msg
// is shorter than 64 bytes, zero padding, and len(msg)*8 as a
// little-endian 16-bit bit-length field at offset 0x38, written last.
func spiceup(msg []byte) [64]byte {
	var buf [64]byte
	n := len(msg)
	if n > 64 {
		n = 64
	}
	copy(buf[:], msg[:n])
	if n < 64 {
		buf[n] = 0x80
	}
	binary.LittleEndian.PutUint16(buf[0x38:0x3A], uint16(len(msg)*8))
	return buf
}

// ripemd256IV is the fixed initial state for explode_key's compression
// round (spec.md GLOSSARY).
var ripemd256IV = [8]uint32{
	0x67452301, 0xEFCDAB89, 0x98BADCFE, 0x10325476,
	0x76543210, 0xFEDCBA98, 0x89ABCDEF, 0x01234567,
}

// RIPEMD-256 round constants (spec.md GLOSSARY).
var ripemdK = [4]uint32{0x00000000, 0x5A827999, 0x6ED9EBA1, 0x8F1BBCDC}
var ripemdKp = [4]uint32{0x50A28BE6, 0x5C4DD124, 0x6D703EF3, 0x00000000}

// RIPEMD-256 message-word selection tables, left and right line.
var ripemdR = [64]int{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15,
	7, 4, 13, 1, 10, 6, 15, 3, 12, 0, 9, 5, 2, 14, 11, 8,
	3, 10, 14, 4, 9, 15, 8, 1, 2, 7, 0, 6, 13, 11, 5, 12,
	1, 9, 11, 10, 0, 8, 12, 4, 13, 3, 7, 15, 14, 5, 6, 2,
}
var ripemdRp = [64]int{
	5, 14, 7, 0, 9, 2, 11, 4, 13, 6, 15, 8, 1, 10, 3, 12,
	6, 11, 3, 7, 0, 13, 5, 10, 14, 15, 8, 12, 4, 9, 1, 2,
	15, 5, 1, 3, 7, 14, 6, 9, 11, 8, 12, 2, 10, 0, 4, 13,
	8, 6, 4, 1, 3, 11, 15, 0, 5, 12, 2, 13, 9, 7, 10, 14,
}

// RIPEMD-256 rotation-amount tables, left and right line.
var ripemdS = [64]uint{
	11, 14, 15, 12, 5, 8, 7, 9, 11, 13, 14, 15, 6, 7, 9, 8,
	7, 6, 8, 13, 11, 9, 7, 15, 7, 12, 15, 9, 11, 7, 13, 12,
	11, 13, 6, 7, 14, 9, 13, 15, 14, 8, 13, 6, 5, 12, 7, 5,
	11, 12, 14, 15, 14, 15, 9, 8, 9, 14, 5, 6, 8, 6, 5, 12,
}
var ripemdSp = [64]uint{
	8, 9, 9, 11, 13, 15, 15, 5, 7, 7, 8, 11, 14, 14, 12, 6,
	9, 13, 15, 7, 12, 8, 9, 11, 7, 7, 12, 7, 6, 15, 13, 11,
	9, 7, 15, 11, 8, 6, 6, 14, 12, 13, 5, 14, 13, 13, 7, 5,
	15, 5, 8, 11, 14, 14, 6, 14, 6, 9, 12, 9, 12, 5, 15, 8,
}

func rotl32(x uint32, n uint) uint32 {
	return (x << n) | (x >> (32 - n))
}

func ripemdF(round int, x, y, z uint32) uint32 {
	switch round {
	case 0:
		return x ^ y ^ z
	case 1:
		return (x & y) | (^x & z)
	case 2:
		return (x | ^y) ^ z
	default:
		return (x & z) | (y &^ z)
	}
}

// ripemd256Round runs one 64-step dual-line compression round over the
// 16-word message block X, starting from ripemd256IV, and returns the
// post-round chaining state (already added to the IV).
func ripemd256Round(x [16]uint32) [8]uint32 {
	a, b, c, d := ripemd256IV[0], ripemd256IV[1], ripemd256IV[2], ripemd256IV[3]
	ap, bp, cp, dp := ripemd256IV[4], ripemd256IV[5], ripemd256IV[6], ripemd256IV[7]

	for j := 0; j < 64; j++ {
		round := j / 16

		t := rotl32(a+ripemdF(round, b, c, d)+x[ripemdR[j]]+ripemdK[round], ripemdS[j])
		a, d, c, b = d, c, b, t

		tp := rotl32(ap+ripemdF(3-round, bp, cp, dp)+x[ripemdRp[j]]+ripemdKp[round], ripemdSp[j])
		ap, dp, cp, bp = dp, cp, bp, tp

		switch j {
		case 15:
			a, ap = ap, a
		case 31:
			b, bp = bp, b
		case 47:
			c, cp = cp, c
		case 63:
			d, dp = dp, d
		}
	}

	return [8]uint32{
		ripemd256IV[0] + a, ripemd256IV[1] + b, ripemd256IV[2] + c, ripemd256IV[3] + d,
		ripemd256IV[4] + ap, ripemd256IV[5] + bp, ripemd256IV[6] + cp, ripemd256IV[7] + dp,
	}
}

// explodeKey derives a 32-byte key from an arbitrary-length input: either
// a password, or a 32-byte decrypted key concatenated with a trailing
// zero byte (spec.md §4.6 decrypt_key).
func explodeKey(input []byte) [32]byte {
	block := spiceup(input)

	var x [16]uint32
	for i := 0; i < 16; i++ {
		x[i] = binary.LittleEndian.Uint32(block[4*i : 4*i+4])
	}

	h := ripemd256Round(x)

	var out [32]byte
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint32(out[4*i:4*i+4], h[i])
	}
	return out
}
