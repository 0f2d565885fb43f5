// Package sfs implements a reader/writer for the proprietary SFS chunked
// file-container format: a directory tree of named files packed into a
// single seekable host file, addressed through a fixed-size-block
// allocator.
//
// # Overview
//
// A container is a sequence of 4096-byte chunks following a 280-byte
// prologue. Chunk 0 through 3 are reserved; the directory tree and every
// file's data live in chunks 4 and up, threaded together by intrusive
// singly-linked chains of chunk indices rather than heap pointers.
//
// Files may be optionally compressed with a wrapped-zlib envelope
// (magic "AACS", §4.7) and optionally encrypted with a password-derived
// key. Encryption uses a vendor-modified AES-256 ("WrongAES", §4.4) in a
// non-standard chained mode (§4.6) — this is not the conventional
// AES-256/CBC pairing, and reproducing it bit-exact is the point: existing
// containers must remain readable.
//
// # Supported primitives
//
//   - WrongAES: AES-128/192/256 block cipher with a non-standard 256-bit
//     key schedule. 128/192-bit keys use the conventional schedule.
//   - explode_key: a password/key mixing primitive built from one round of
//     a RIPEMD-256-style compression function over an MD-style padded
//     block, used to derive per-file keys from a password.
//   - SFS chain cipher: a CBC-like mode built on WrongAES where the IV fed
//     into block i+1 is the XOR of ciphertext block i with the IV used for
//     block i, not the ciphertext itself.
//   - AACS envelope: a fixed 144-byte header wrapping a zlib stream,
//     checksummed with CRC-16 (ARC/CRC-16-IBM, polynomial 0xA001).
//
// # Basic usage
//
//	c, err := sfs.Open(backingStore)
//	if err != nil {
//	    return err
//	}
//	files, err := c.Files()
//	if err != nil {
//	    return err
//	}
//	for _, fh := range files {
//	    data, err := c.ReadFile(fh, []byte("password"))
//	    ...
//	}
//
// # Concurrency
//
// A Container is not safe for concurrent use. Every operation is
// synchronous and blocks on the underlying backing store; there is no
// internal locking, caching, or background work. Callers sharing a
// Container across goroutines must serialize access themselves.
//
// # Not implemented
//
// The command-line driver, pathname resolution beyond the flat filename
// stored in each entry, and temporary-file handling are external
// collaborators and live outside this package.
package sfs
