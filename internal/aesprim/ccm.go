package aesprim

import (
	"crypto/subtle"
	"fmt"
)

// CCM nonce/tag sizes fixed by the FVE on-disk format: a 12-byte nonce
// (giving L = 15-12 = 3) and a 16-byte MAC (M = 16, untruncated).
const (
	CCMNonceSize = 12
	CCMMacSize   = 16
)

// Unwrap decrypts and authenticates an AES-CCM envelope as used to wrap
// stretch keys, VMKs, and the FVEK. There is no associated data: the
// B0 flags byte therefore has its Adata bit clear.
//
// Grounded on RFC 3610 counter-with-CBC-MAC construction, specialized to
// the fixed 12-byte nonce / 16-byte tag FVE always uses.
func Unwrap(key []byte, nonce [CCMNonceSize]byte, mac [CCMMacSize]byte, ciphertext []byte) ([]byte, error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, err
	}

	s0, err := counterBlock(block, nonce, 0)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	for off := 0; off < len(ciphertext); off += 16 {
		end := off + 16
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		si, err := counterBlock(block, nonce, uint32(off/16)+1)
		if err != nil {
			return nil, err
		}
		xorBytes(plaintext[off:end], ciphertext[off:end], si[:end-off])
	}

	computed := cbcMacTag(block, nonce, plaintext)
	xorBytes(computed[:], computed[:], s0[:])

	if subtle.ConstantTimeCompare(computed[:], mac[:]) != 1 {
		Zero(plaintext)
		return nil, fmt.Errorf("aesprim: ccm: authentication failed")
	}
	return plaintext, nil
}

// Wrap is the inverse of Unwrap, used by round-trip tests: it encrypts
// plaintext and computes the matching MAC under the same construction.
func Wrap(key []byte, nonce [CCMNonceSize]byte, plaintext []byte) (ciphertext []byte, mac [CCMMacSize]byte, err error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, mac, err
	}

	s0, err := counterBlock(block, nonce, 0)
	if err != nil {
		return nil, mac, err
	}

	ciphertext = make([]byte, len(plaintext))
	for off := 0; off < len(plaintext); off += 16 {
		end := off + 16
		if end > len(plaintext) {
			end = len(plaintext)
		}
		si, err := counterBlock(block, nonce, uint32(off/16)+1)
		if err != nil {
			return nil, mac, err
		}
		xorBytes(ciphertext[off:end], plaintext[off:end], si[:end-off])
	}

	tag := cbcMacTag(block, nonce, plaintext)
	xorBytes(mac[:], tag[:], s0[:])
	return ciphertext, mac, nil
}

// counterBlock computes S_i = AES-Encrypt(flags=0x03 || nonce || counter)
// for the given 3-byte big-endian counter value.
func counterBlock(block interface{ Encrypt(dst, src []byte) }, nonce [CCMNonceSize]byte, counter uint32) ([16]byte, error) {
	if counter > 0xFFFFFF {
		return [16]byte{}, fmt.Errorf("aesprim: ccm: counter overflow (L=3 allows at most 2^24 blocks)")
	}
	var a [16]byte
	a[0] = 0x03
	copy(a[1:13], nonce[:])
	a[13] = byte(counter >> 16)
	a[14] = byte(counter >> 8)
	a[15] = byte(counter)

	var s [16]byte
	block.Encrypt(s[:], a[:])
	return s, nil
}

// cbcMacTag computes the raw (unmasked) CBC-MAC tag T over B0 followed
// by the zero-padded plaintext blocks, with the Adata bit clear (there
// is no associated data in the FVE construction).
func cbcMacTag(block interface{ Encrypt(dst, src []byte) }, nonce [CCMNonceSize]byte, plaintext []byte) [16]byte {
	const m = 16 // tag size in bytes
	const l = 3  // length-field size in bytes (15 - nonce size)

	var b0 [16]byte
	b0[0] = byte(((m - 2) / 2) << 3) // Adata bit clear, M field, L-1 field below
	b0[0] |= l - 1
	copy(b0[1:13], nonce[:])
	n := len(plaintext)
	b0[13] = byte(n >> 16)
	b0[14] = byte(n >> 8)
	b0[15] = byte(n)

	var y [16]byte
	block.Encrypt(y[:], b0[:])

	for off := 0; off < len(plaintext); off += 16 {
		var blk [16]byte
		end := off + 16
		if end > len(plaintext) {
			end = len(plaintext)
		}
		copy(blk[:], plaintext[off:end])
		xorBytes(blk[:], blk[:], y[:])
		block.Encrypt(y[:], blk[:])
	}
	return y
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
