package sfs

import "fmt"

// SFS chain cipher: a CBC-like mode built on WrongAES, used both for the
// 32-byte encrypted-key field inside each FileHeader and for encrypted
// FileDataChunk payloads (spec.md §4.6). The IV fed into block i+1 is the
// XOR of ciphertext block i with the IV used for block i — not the
// ciphertext itself, which is what makes this a non-standard variant of
// CBC rather than CBC proper. Both directions must be reproduced exactly
// to stay compatible with existing containers; this is not a place to
// "fix" the scheme.

const chainBlockSize = 16

// chainIV derives the initial IV for a chain under key by encrypting a
// block of 0xFF bytes.
func chainIV(key []byte) ([]byte, error) {
	cipher, err := NewWrongAESCipher(key)
	if err != nil {
		return nil, err
	}
	ff := make([]byte, chainBlockSize)
	for i := range ff {
		ff[i] = 0xFF
	}
	return cipher.EncryptBlock(ff), nil
}

func xorBlock(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// chainDecrypt decrypts data (a multiple of 16 bytes) under key using the
// SFS chain mode.
func chainDecrypt(data, key []byte) ([]byte, error) {
	if len(data)%chainBlockSize != 0 {
		return nil, fmt.Errorf("chain cipher: input length %d is not a multiple of %d", len(data), chainBlockSize)
	}
	cipher, err := NewWrongAESCipher(key)
	if err != nil {
		return nil, err
	}
	iv, err := chainIV(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	for off := 0; off < len(data); off += chainBlockSize {
		c := data[off : off+chainBlockSize]
		nextIV := xorBlock(c, iv)
		p := cipher.DecryptBlock(c)
		p = xorBlock(p, iv)
		copy(out[off:off+chainBlockSize], p)
		iv = nextIV
	}
	return out, nil
}

// chainEncrypt encrypts data (a multiple of 16 bytes) under key using the
// SFS chain mode.
func chainEncrypt(data, key []byte) ([]byte, error) {
	if len(data)%chainBlockSize != 0 {
		return nil, fmt.Errorf("chain cipher: input length %d is not a multiple of %d", len(data), chainBlockSize)
	}
	cipher, err := NewWrongAESCipher(key)
	if err != nil {
		return nil, err
	}
	iv, err := chainIV(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	for off := 0; off < len(data); off += chainBlockSize {
		p := data[off : off+chainBlockSize]
		c := cipher.EncryptBlock(xorBlock(p, iv))
		iv = xorBlock(c, iv)
		copy(out[off:off+chainBlockSize], c)
	}
	return out, nil
}

// decryptKey extracts a per-file data key from a FileHeader's 32-byte
// encrypted-key field, given the container password (spec.md §4.6).
func decryptKey(encryptedKey, password []byte) ([32]byte, error) {
	passKey := explodeKey(password)
	decrypted, err := chainDecrypt(encryptedKey, passKey[:])
	if err != nil {
		return [32]byte{}, err
	}
	return explodeKey(append(decrypted, 0x00)), nil
}
