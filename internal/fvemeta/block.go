package fvemeta

import (
	"fmt"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/bytestream"
)

// BlockSize is the fixed size of one on-disk FVE metadata block.
const BlockSize = 4096

// BlockHeaderSize and MetadataHeaderSize are the fixed sizes of the two
// headers a metadata block opens with; everything after them is the TLV
// entry stream.
const (
	BlockHeaderSize    = 64
	MetadataHeaderSize = 48
)

// ParseBlockHeader decodes the 64-byte block header at the start of b.
func ParseBlockHeader(b []byte) (*BlockHeader, error) {
	const op = "fvemeta.ParseBlockHeader"
	if len(b) < BlockHeaderSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("block too short: %d bytes", len(b)))
	}
	if !bytestream.HasSignature(b) {
		return nil, bdeerr.New(op, bdeerr.KindBadSignature, fmt.Errorf("missing FVE signature"))
	}
	version, err := bytestream.Uint16(b, 8)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	if version != 1 && version != 2 {
		return nil, bdeerr.New(op, bdeerr.KindUnsupportedVersion, fmt.Errorf("block version %d", version))
	}

	h := &BlockHeader{Version: version}
	copy(h.Signature[:], b[0:8])

	switch version {
	case 1:
		v, err := bytestream.Uint64(b, 16)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		h.MFTMirrorBlock = v
	case 2:
		volSize, err := bytestream.Uint64(b, 16)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		hdrOffset, err := bytestream.Uint64(b, 24)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		hdrSectors, err := bytestream.Uint16(b, 56)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		h.VolumeSize = volSize
		h.HeaderOffset = hdrOffset
		h.HeaderSectors = hdrSectors
	}

	first, err := bytestream.Uint64(b, 32)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	second, err := bytestream.Uint64(b, 40)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	third, err := bytestream.Uint64(b, 48)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	h.FirstOffset = first
	h.SecondOffset = second
	h.ThirdOffset = third

	return h, nil
}

// EncodeBlockHeader is the inverse of ParseBlockHeader, used by
// round-trip tests and by synthetic fixture construction.
func EncodeBlockHeader(h *BlockHeader) []byte {
	b := make([]byte, BlockHeaderSize)
	copy(b[0:8], bytestream.Signature[:])
	putUint16(b, 8, h.Version)
	switch h.Version {
	case 1:
		putUint64(b, 16, h.MFTMirrorBlock)
	case 2:
		putUint64(b, 16, h.VolumeSize)
		putUint64(b, 24, h.HeaderOffset)
		putUint16(b, 56, h.HeaderSectors)
	}
	putUint64(b, 32, h.FirstOffset)
	putUint64(b, 40, h.SecondOffset)
	putUint64(b, 48, h.ThirdOffset)
	return b
}

// ParseMetadataHeader decodes the 48-byte metadata header that
// immediately follows the block header.
func ParseMetadataHeader(b []byte) (*MetadataHeader, error) {
	const op = "fvemeta.ParseMetadataHeader"
	if len(b) < MetadataHeaderSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata header too short: %d bytes", len(b)))
	}
	size, err := bytestream.Uint32(b, 0)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	version, err := bytestream.Uint32(b, 4)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	headerSize, err := bytestream.Uint32(b, 8)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	sizeCopy, err := bytestream.Uint32(b, 12)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	volID, err := bytestream.GUID(b, 16)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	nonce, err := bytestream.Uint32(b, 32)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	method, err := bytestream.Uint32(b, 36)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	created, err := bytestream.FILETIME(b, 40)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}

	if size != sizeCopy {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata_size %d != metadata_size_copy %d", size, sizeCopy))
	}
	if headerSize != MetadataHeaderSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata_header_size %d != %d", headerSize, MetadataHeaderSize))
	}
	if size < MetadataHeaderSize || size > BlockSize-BlockHeaderSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata_size %d out of range [%d,%d]", size, MetadataHeaderSize, BlockSize-BlockHeaderSize))
	}
	if !EncryptionMethod(method).Valid() {
		return nil, bdeerr.New(op, bdeerr.KindUnsupportedVersion, fmt.Errorf("unknown encryption method 0x%04x", method))
	}

	return &MetadataHeader{
		MetadataSize:     size,
		Version:          version,
		HeaderSize:       headerSize,
		MetadataSizeCopy: sizeCopy,
		VolumeIdentifier: volID,
		NextNonceCounter: nonce,
		EncryptionMethod: EncryptionMethod(method),
		CreationTime:     created,
	}, nil
}

// EncodeMetadataHeader is the inverse of ParseMetadataHeader.
func EncodeMetadataHeader(h *MetadataHeader) []byte {
	b := make([]byte, MetadataHeaderSize)
	putUint32(b, 0, h.MetadataSize)
	putUint32(b, 4, h.Version)
	putUint32(b, 8, h.HeaderSize)
	putUint32(b, 12, h.MetadataSizeCopy)
	bytestream.PutGUID(b, 16, h.VolumeIdentifier)
	putUint32(b, 32, h.NextNonceCounter)
	putUint32(b, 36, uint32(h.EncryptionMethod))
	putUint64(b, 40, bytestream.TimeToFiletime(h.CreationTime))
	return b
}

func putUint16(b []byte, off int, v uint16) {
	b[off], b[off+1] = byte(v), byte(v>>8)
}

func putUint32(b []byte, off int, v uint32) {
	for i := 0; i < 4; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}

func putUint64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}
