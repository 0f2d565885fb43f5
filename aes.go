package sfs

// AES core: a conventional AES-128/192/256 block cipher (canonical
// S-box, gmul-driven MixColumns, conventional key schedule). WrongAES
// (wrongaes.go) reuses every piece of this file except the 256-bit key
// schedule, which it overrides with the vendor variant (spec.md §4.4).
//
// The state is a 4x4 byte matrix laid out column-major: state[c][r] is
// the byte at column c, row r (spec.md §4.3).

// sbox is the canonical forward AES S-box.
var sbox = [256]byte{
	0x63, 0x7c, 0x77, 0x7b, 0xf2, 0x6b, 0x6f, 0xc5, 0x30, 0x01, 0x67, 0x2b, 0xfe, 0xd7, 0xab, 0x76,
	0xca, 0x82, 0xc9, 0x7d, 0xfa, 0x59, 0x47, 0xf0, 0xad, 0xd4, 0xa2, 0xaf, 0x9c, 0xa4, 0x72, 0xc0,
	0xb7, 0xfd, 0x93, 0x26, 0x36, 0x3f, 0xf7, 0xcc, 0x34, 0xa5, 0xe5, 0xf1, 0x71, 0xd8, 0x31, 0x15,
	0x04, 0xc7, 0x23, 0xc3, 0x18, 0x96, 0x05, 0x9a, 0x07, 0x12, 0x80, 0xe2, 0xeb, 0x27, 0xb2, 0x75,
	0x09, 0x83, 0x2c, 0x1a, 0x1b, 0x6e, 0x5a, 0xa0, 0x52, 0x3b, 0xd6, 0xb3, 0x29, 0xe3, 0x2f, 0x84,
	0x53, 0xd1, 0x00, 0xed, 0x20, 0xfc, 0xb1, 0x5b, 0x6a, 0xcb, 0xbe, 0x39, 0x4a, 0x4c, 0x58, 0xcf,
	0xd0, 0xef, 0xaa, 0xfb, 0x43, 0x4d, 0x33, 0x85, 0x45, 0xf9, 0x02, 0x7f, 0x50, 0x3c, 0x9f, 0xa8,
	0x51, 0xa3, 0x40, 0x8f, 0x92, 0x9d, 0x38, 0xf5, 0xbc, 0xb6, 0xda, 0x21, 0x10, 0xff, 0xf3, 0xd2,
	0xcd, 0x0c, 0x13, 0xec, 0x5f, 0x97, 0x44, 0x17, 0xc4, 0xa7, 0x7e, 0x3d, 0x64, 0x5d, 0x19, 0x73,
	0x60, 0x81, 0x4f, 0xdc, 0x22, 0x2a, 0x90, 0x88, 0x46, 0xee, 0xb8, 0x14, 0xde, 0x5e, 0x0b, 0xdb,
	0xe0, 0x32, 0x3a, 0x0a, 0x49, 0x06, 0x24, 0x5c, 0xc2, 0xd3, 0xac, 0x62, 0x91, 0x95, 0xe4, 0x79,
	0xe7, 0xc8, 0x37, 0x6d, 0x8d, 0xd5, 0x4e, 0xa9, 0x6c, 0x56, 0xf4, 0xea, 0x65, 0x7a, 0xae, 0x08,
	0xba, 0x78, 0x25, 0x2e, 0x1c, 0xa6, 0xb4, 0xc6, 0xe8, 0xdd, 0x74, 0x1f, 0x4b, 0xbd, 0x8b, 0x8a,
	0x70, 0x3e, 0xb5, 0x66, 0x48, 0x03, 0xf6, 0x0e, 0x61, 0x35, 0x57, 0xb9, 0x86, 0xc1, 0x1d, 0x9e,
	0xe1, 0xf8, 0x98, 0x11, 0x69, 0xd9, 0x8e, 0x94, 0x9b, 0x1e, 0x87, 0xe9, 0xce, 0x55, 0x28, 0xdf,
	0x8c, 0xa1, 0x89, 0x0d, 0xbf, 0xe6, 0x42, 0x68, 0x41, 0x99, 0x2d, 0x0f, 0xb0, 0x54, 0xbb, 0x16,
}

// invSbox is the canonical inverse AES S-box.
var invSbox = [256]byte{
	0x52, 0x09, 0x6a, 0xd5, 0x30, 0x36, 0xa5, 0x38, 0xbf, 0x40, 0xa3, 0x9e, 0x81, 0xf3, 0xd7, 0xfb,
	0x7c, 0xe3, 0x39, 0x82, 0x9b, 0x2f, 0xff, 0x87, 0x34, 0x8e, 0x43, 0x44, 0xc4, 0xde, 0xe9, 0xcb,
	0x54, 0x7b, 0x94, 0x32, 0xa6, 0xc2, 0x23, 0x3d, 0xee, 0x4c, 0x95, 0x0b, 0x42, 0xfa, 0xc3, 0x4e,
	0x08, 0x2e, 0xa1, 0x66, 0x28, 0xd9, 0x24, 0xb2, 0x76, 0x5b, 0xa2, 0x49, 0x6d, 0x8b, 0xd1, 0x25,
	0x72, 0xf8, 0xf6, 0x64, 0x86, 0x68, 0x98, 0x16, 0xd4, 0xa4, 0x5c, 0xcc, 0x5d, 0x65, 0xb6, 0x92,
	0x6c, 0x70, 0x48, 0x50, 0xfd, 0xed, 0xb9, 0xda, 0x5e, 0x15, 0x46, 0x57, 0xa7, 0x8d, 0x9d, 0x84,
	0x90, 0xd8, 0xab, 0x00, 0x8c, 0xbc, 0xd3, 0x0a, 0xf7, 0xe4, 0x58, 0x05, 0xb8, 0xb3, 0x45, 0x06,
	0xd0, 0x2c, 0x1e, 0x8f, 0xca, 0x3f, 0x0f, 0x02, 0xc1, 0xaf, 0xbd, 0x03, 0x01, 0x13, 0x8a, 0x6b,
	0x3a, 0x91, 0x11, 0x41, 0x4f, 0x67, 0xdc, 0xea, 0x97, 0xf2, 0xcf, 0xce, 0xf0, 0xb4, 0xe6, 0x73,
	0x96, 0xac, 0x74, 0x22, 0xe7, 0xad, 0x35, 0x85, 0xe2, 0xf9, 0x37, 0xe8, 0x1c, 0x75, 0xdf, 0x6e,
	0x47, 0xf1, 0x1a, 0x71, 0x1d, 0x29, 0xc5, 0x89, 0x6f, 0xb7, 0x62, 0x0e, 0xaa, 0x18, 0xbe, 0x1b,
	0xfc, 0x56, 0x3e, 0x4b, 0xc6, 0xd2, 0x79, 0x20, 0x9a, 0xdb, 0xc0, 0xfe, 0x78, 0xcd, 0x5a, 0xf4,
	0x1f, 0xdd, 0xa8, 0x33, 0x88, 0x07, 0xc7, 0x31, 0xb1, 0x12, 0x10, 0x59, 0x27, 0x80, 0xec, 0x5f,
	0x60, 0x51, 0x7f, 0xa9, 0x19, 0xb5, 0x4a, 0x0d, 0x2d, 0xe5, 0x7a, 0x9f, 0x93, 0xc9, 0x9c, 0xef,
	0xa0, 0xe0, 0x3b, 0x4d, 0xae, 0x2a, 0xf5, 0xb0, 0xc8, 0xeb, 0xbb, 0x3c, 0x83, 0x53, 0x99, 0x61,
	0x17, 0x2b, 0x04, 0x7e, 0xba, 0x77, 0xd6, 0x26, 0xe1, 0x69, 0x14, 0x63, 0x55, 0x21, 0x0c, 0x7d,
}

// rcon holds the AES round constants, indexed from 1 (rcon[0] is unused
// padding so callers can index by round number directly).
var rcon = [15]byte{
	0x00, 0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80, 0x1B, 0x36, 0x6C, 0xD8, 0xAB, 0x4D,
}

// xtime multiplies b by x in GF(2^8) modulo the AES reduction polynomial.
func xtime(b byte) byte {
	if b&0x80 != 0 {
		return (b << 1) ^ 0x1B
	}
	return b << 1
}

// gmul multiplies a and b in GF(2^8), used by (Inv)MixColumns.
func gmul(a, b byte) byte {
	var p byte
	for i := 0; i < 8; i++ {
		if b&1 != 0 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

func subWord(w [4]byte) [4]byte {
	return [4]byte{sbox[w[0]], sbox[w[1]], sbox[w[2]], sbox[w[3]]}
}

// rot8 is the standard RotWord: a one-byte left rotation.
func rot8(w [4]byte) [4]byte {
	return [4]byte{w[1], w[2], w[3], w[0]}
}

func xorWord(a, b [4]byte) [4]byte {
	return [4]byte{a[0] ^ b[0], a[1] ^ b[1], a[2] ^ b[2], a[3] ^ b[3]}
}

// expandKeyStandard runs the conventional Rijndael key schedule for a
// 16/24/32-byte key, returning Nr+1 round keys of 16 bytes each.
func expandKeyStandard(key []byte) ([][16]byte, error) {
	if err := validateKeySize(key); err != nil {
		return nil, err
	}
	nk := len(key) / 4
	nr := nk + 6
	total := 4 * (nr + 1)

	w := make([][4]byte, total)
	for i := 0; i < nk; i++ {
		copy(w[i][:], key[4*i:4*i+4])
	}
	for i := nk; i < total; i++ {
		temp := w[i-1]
		switch {
		case i%nk == 0:
			temp = xorWord(subWord(rot8(temp)), [4]byte{rcon[i/nk], 0, 0, 0})
		case nk > 6 && i%nk == 4:
			temp = subWord(temp)
		}
		w[i] = xorWord(w[i-nk], temp)
	}

	roundKeys := make([][16]byte, nr+1)
	for r := 0; r <= nr; r++ {
		for c := 0; c < 4; c++ {
			copy(roundKeys[r][4*c:4*c+4], w[4*r+c][:])
		}
	}
	return roundKeys, nil
}

// aesState is the 4x4 cipher state, column-major: state[col][row].
type aesState [4][4]byte

func blockToState(in []byte) aesState {
	var s aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			s[c][r] = in[4*c+r]
		}
	}
	return s
}

func stateToBlock(s aesState) []byte {
	out := make([]byte, 16)
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[4*c+r] = s[c][r]
		}
	}
	return out
}

func addRoundKey(s aesState, rk [16]byte) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = s[c][r] ^ rk[4*c+r]
		}
	}
	return out
}

func subBytes(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = sbox[s[c][r]]
		}
	}
	return out
}

func invSubBytes(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = invSbox[s[c][r]]
		}
	}
	return out
}

func shiftRows(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = s[(c+r)%4][r]
		}
	}
	return out
}

func invShiftRows(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[c][r] = s[(c-r+4)%4][r]
		}
	}
	return out
}

func mixColumns(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		s0, s1, s2, s3 := s[c][0], s[c][1], s[c][2], s[c][3]
		out[c][0] = gmul(s0, 2) ^ gmul(s1, 3) ^ s2 ^ s3
		out[c][1] = s0 ^ gmul(s1, 2) ^ gmul(s2, 3) ^ s3
		out[c][2] = s0 ^ s1 ^ gmul(s2, 2) ^ gmul(s3, 3)
		out[c][3] = gmul(s0, 3) ^ s1 ^ s2 ^ gmul(s3, 2)
	}
	return out
}

func invMixColumns(s aesState) aesState {
	var out aesState
	for c := 0; c < 4; c++ {
		s0, s1, s2, s3 := s[c][0], s[c][1], s[c][2], s[c][3]
		out[c][0] = gmul(s0, 14) ^ gmul(s1, 11) ^ gmul(s2, 13) ^ gmul(s3, 9)
		out[c][1] = gmul(s0, 9) ^ gmul(s1, 14) ^ gmul(s2, 11) ^ gmul(s3, 13)
		out[c][2] = gmul(s0, 13) ^ gmul(s1, 9) ^ gmul(s2, 14) ^ gmul(s3, 11)
		out[c][3] = gmul(s0, 11) ^ gmul(s1, 13) ^ gmul(s2, 9) ^ gmul(s3, 14)
	}
	return out
}

// encryptBlockWith encrypts one 16-byte block under the given round keys.
func encryptBlockWith(in []byte, roundKeys [][16]byte) []byte {
	nr := len(roundKeys) - 1
	s := addRoundKey(blockToState(in), roundKeys[0])
	for round := 1; round < nr; round++ {
		s = subBytes(s)
		s = shiftRows(s)
		s = mixColumns(s)
		s = addRoundKey(s, roundKeys[round])
	}
	s = subBytes(s)
	s = shiftRows(s)
	s = addRoundKey(s, roundKeys[nr])
	return stateToBlock(s)
}

// decryptBlockWith decrypts one 16-byte block under the given round keys.
func decryptBlockWith(in []byte, roundKeys [][16]byte) []byte {
	nr := len(roundKeys) - 1
	s := addRoundKey(blockToState(in), roundKeys[nr])
	for round := nr - 1; round >= 1; round-- {
		s = invShiftRows(s)
		s = invSubBytes(s)
		s = addRoundKey(s, roundKeys[round])
		s = invMixColumns(s)
	}
	s = invShiftRows(s)
	s = invSubBytes(s)
	s = addRoundKey(s, roundKeys[0])
	return stateToBlock(s)
}
