package aesprim

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// ECBEncryptBlock AES-encrypts a single 16-byte block with key under
// ECB (i.e. a bare keyed permutation, no chaining). This is how FVE
// derives per-sector IVs and XTS tweaks: a single block is enciphered,
// never a stream, so ECB's lack of chaining is not a weakness here --
// there is exactly one block per invocation.
func ECBEncryptBlock(key, block []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aesprim: new cipher: %w", err)
	}
	if len(block) != c.BlockSize() {
		return nil, fmt.Errorf("aesprim: ecb block must be %d bytes, got %d", c.BlockSize(), len(block))
	}
	out := make([]byte, len(block))
	c.Encrypt(out, block)
	return out, nil
}

// NewBlockCipher is a thin wrapper over aes.NewCipher shared by the CBC,
// CCM, and XTS helpers so construction errors are reported consistently.
func NewBlockCipher(key []byte) (cipher.Block, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aesprim: new cipher: %w", err)
	}
	return c, nil
}
