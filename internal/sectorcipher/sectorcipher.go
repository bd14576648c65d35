// Package sectorcipher implements the per-sector decryption dispatch
// (spec §4.7): IV/tweak derivation from the sector's byte offset,
// AES-CBC with an optional ELEPHANT diffuser layer for the Vista-era
// encryption methods, and AES-XTS for the newer ones.
package sectorcipher

import (
	"fmt"

	"github.com/jbmetz/go-bde/internal/aesprim"
	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/diffuser"
	"github.com/jbmetz/go-bde/internal/fvemeta"
)

// Engine decrypts whole sectors under a fixed encryption method and
// key set. It holds no volume-offset state: callers supply the logical
// byte offset for each call (the XTS sector number is derived from it),
// so the same Engine can
// be reused for the relocated volume-header sectors and the regular
// address space alike.
type Engine struct {
	method     fvemeta.EncryptionMethod
	sectorSize int
	fvek       []byte
	tweak      []byte // nil unless method is an XTS variant
}

// New builds an Engine for method, validating that the supplied FVEK
// (and tweak key, for XTS methods) are the right length for the
// method's key size.
func New(method fvemeta.EncryptionMethod, sectorSize int, fvek, tweak []byte) (*Engine, error) {
	const op = "sectorcipher.New"
	if !method.Valid() {
		return nil, bdeerr.New(op, bdeerr.KindUnsupportedVersion, fmt.Errorf("unrecognized encryption method 0x%04x", method))
	}
	wantKeyBits, isXTS := keyBitsOf(method)
	if len(fvek)*8 != wantKeyBits {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("fvek length %d does not match method key size %d bits", len(fvek), wantKeyBits))
	}
	if isXTS {
		if len(tweak)*8 != wantKeyBits {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("tweak key length %d does not match method key size %d bits", len(tweak), wantKeyBits))
		}
	}
	return &Engine{method: method, sectorSize: sectorSize, fvek: fvek, tweak: tweak}, nil
}

func keyBitsOf(method fvemeta.EncryptionMethod) (bits int, xts bool) {
	switch method {
	case fvemeta.EncryptionMethodAESCBC128Diffuser, fvemeta.EncryptionMethodAESCBC128:
		return 128, false
	case fvemeta.EncryptionMethodAESCBC256Diffuser, fvemeta.EncryptionMethodAESCBC256:
		return 256, false
	case fvemeta.EncryptionMethodAESXTS128:
		return 128, true
	case fvemeta.EncryptionMethodAESXTS256:
		return 256, true
	}
	return 0, false
}

func usesDiffuser(method fvemeta.EncryptionMethod) bool {
	return method == fvemeta.EncryptionMethodAESCBC128Diffuser || method == fvemeta.EncryptionMethodAESCBC256Diffuser
}

// SectorSize returns the sector size this engine was constructed for.
func (e *Engine) SectorSize() int { return e.sectorSize }

// DecryptSector decrypts one sector of ciphertext. logicalOffset is the
// sector's byte offset in the logical (decrypted) address space -- used
// for CBC IV derivation and as the XTS sector-number tweak seed -- which
// is distinct from the physical offset the ciphertext was read from
// whenever volume-header relocation is in play.
func (e *Engine) DecryptSector(logicalOffset uint64, ciphertext []byte) ([]byte, error) {
	const op = "sectorcipher.DecryptSector"
	if len(ciphertext) != e.sectorSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("ciphertext length %d does not match sector size %d", len(ciphertext), e.sectorSize))
	}

	switch {
	case e.method == fvemeta.EncryptionMethodAESXTS128 || e.method == fvemeta.EncryptionMethodAESXTS256:
		sectorNumber := logicalOffset / uint64(e.sectorSize)
		plain, err := aesprim.XTSDecryptSector(e.fvek, e.tweak, sectorNumber, ciphertext)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		return plain, nil

	default:
		iv, err := sectorIV(e.fvek, logicalOffset)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		plain, err := aesprim.CBCDecryptSector(e.fvek, iv, ciphertext)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		if usesDiffuser(e.method) {
			diffuser.DecryptB(plain)
			diffuser.DecryptA(plain)
		}
		return plain, nil
	}
}

// EncryptSector is the inverse of DecryptSector, used by round-trip
// tests (spec invariant: re-encrypting a read at its logical offset
// reproduces the on-disk ciphertext).
func (e *Engine) EncryptSector(logicalOffset uint64, plaintext []byte) ([]byte, error) {
	const op = "sectorcipher.EncryptSector"
	if len(plaintext) != e.sectorSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("plaintext length %d does not match sector size %d", len(plaintext), e.sectorSize))
	}

	switch {
	case e.method == fvemeta.EncryptionMethodAESXTS128 || e.method == fvemeta.EncryptionMethodAESXTS256:
		sectorNumber := logicalOffset / uint64(e.sectorSize)
		cipher, err := aesprim.XTSEncryptSector(e.fvek, e.tweak, sectorNumber, plaintext)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		return cipher, nil

	default:
		work := append([]byte(nil), plaintext...)
		if usesDiffuser(e.method) {
			diffuser.EncryptA(work)
			diffuser.EncryptB(work)
		}
		iv, err := sectorIV(e.fvek, logicalOffset)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		cipher, err := aesprim.CBCEncryptSector(e.fvek, iv, work)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		return cipher, nil
	}
}

// sectorIV derives the CBC initialization vector for a sector at the
// given logical byte offset: AES-ECB-encrypt the little-endian 16-byte
// (zero-extended) sector byte-offset under the FVEK.
func sectorIV(fvek []byte, logicalOffset uint64) ([]byte, error) {
	var block [16]byte
	for i := 0; i < 8; i++ {
		block[i] = byte(logicalOffset >> (8 * i))
	}
	return aesprim.ECBEncryptBlock(fvek, block[:])
}
