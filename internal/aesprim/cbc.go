package aesprim

import (
	"crypto/cipher"
	"fmt"
)

// CBCDecryptSector decrypts one sector's worth of ciphertext, returning
// a freshly allocated plaintext buffer. iv must be one block (16 bytes);
// ciphertext must be a whole multiple of the block size -- FVE sectors
// always are, since the sector size itself is a multiple of 16.
func CBCDecryptSector(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(iv) != bs {
		return nil, fmt.Errorf("aesprim: cbc iv must be %d bytes, got %d", bs, len(iv))
	}
	if len(ciphertext)%bs != 0 {
		return nil, fmt.Errorf("aesprim: cbc ciphertext length %d not a multiple of block size %d", len(ciphertext), bs)
	}
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

// CBCEncryptSector is the inverse of CBCDecryptSector, used by
// round-trip tests (re-encrypt plaintext to validate against on-disk
// ciphertext, per the invariant that read(o,n) re-encrypted at offset o
// reproduces the original ciphertext).
func CBCEncryptSector(key, iv, plaintext []byte) ([]byte, error) {
	block, err := NewBlockCipher(key)
	if err != nil {
		return nil, err
	}
	bs := block.BlockSize()
	if len(iv) != bs {
		return nil, fmt.Errorf("aesprim: cbc iv must be %d bytes, got %d", bs, len(iv))
	}
	if len(plaintext)%bs != 0 {
		return nil, fmt.Errorf("aesprim: cbc plaintext length %d not a multiple of block size %d", len(plaintext), bs)
	}
	ciphertext := make([]byte, len(plaintext))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}
