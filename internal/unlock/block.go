package unlock

import (
	"encoding/binary"
	"fmt"
)

// unwrappedBlock is the plaintext layout produced by AES-CCM-decrypting
// a VMK or FVEK envelope: a 16-byte reserved header, then a nested
// size/version/reserved sub-header at offset 16, then key material at
// offset 28 running for (DataSize-12) bytes.
type unwrappedBlock struct {
	DataSize    uint16
	Version     uint16
	KeyMaterial []byte
}

const (
	unwrappedHeaderSize   = 28
	unwrappedSubHeaderLen = 12 // DataSize counts from offset 16, inclusive of this sub-header
)

func parseUnwrappedBlock(plaintext []byte) (*unwrappedBlock, error) {
	if len(plaintext) < unwrappedHeaderSize {
		return nil, fmt.Errorf("unlock: unwrapped block too short: %d bytes", len(plaintext))
	}
	dataSize := binary.LittleEndian.Uint16(plaintext[16:18])
	version := binary.LittleEndian.Uint16(plaintext[20:22])
	if int(dataSize) < unwrappedSubHeaderLen {
		return nil, fmt.Errorf("unlock: unwrapped block data_size 0x%x smaller than header", dataSize)
	}
	keyLen := int(dataSize) - unwrappedSubHeaderLen
	end := unwrappedHeaderSize + keyLen
	if end > len(plaintext) {
		return nil, fmt.Errorf("unlock: unwrapped block key material truncated: need %d bytes, have %d", end, len(plaintext))
	}
	return &unwrappedBlock{
		DataSize:    dataSize,
		Version:     version,
		KeyMaterial: plaintext[unwrappedHeaderSize:end],
	}, nil
}
