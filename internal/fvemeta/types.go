// Package fvemeta implements the FVE metadata block reader and TLV
// entry decoder: §4.2/§4.3 of the unlock pipeline. It has no notion of
// credentials or cryptography -- it turns raw bytes into a typed entry
// tree, and the protector package builds the domain model (VMK records,
// stretch keys, envelopes) on top of it.
package fvemeta

import (
	"time"

	"github.com/google/uuid"
)

// EntryType identifies what a top-level (or nested) metadata entry
// represents.
type EntryType uint16

const (
	EntryTypeVolumeMasterKey        EntryType = 0x0002
	EntryTypeFullVolumeEncryptionKey EntryType = 0x0003
	EntryTypeDescription            EntryType = 0x0007
	EntryTypeSecondaryFVEK          EntryType = 0x000b // recognized, reserved (see DESIGN.md)
	EntryTypeVolumeHeaderBlock      EntryType = 0x000f
)

// ValueType identifies how an entry's payload is structured.
type ValueType uint16

const (
	ValueTypeErased             ValueType = 0x0000
	ValueTypeKey                ValueType = 0x0001
	ValueTypeUnicodeString      ValueType = 0x0002
	ValueTypeStretchKey         ValueType = 0x0003
	ValueTypeUseKey             ValueType = 0x0004
	ValueTypeAESCCMEncryptedKey ValueType = 0x0005
	ValueTypeTPMEncodedKey      ValueType = 0x0006
	ValueTypeValidation         ValueType = 0x0007
	ValueTypeVolumeMasterKey    ValueType = 0x0008
	ValueTypeExternalKey        ValueType = 0x0009
	ValueTypeUpdate             ValueType = 0x000a
	ValueTypeErrorLog           ValueType = 0x000b
	ValueTypeOffsetAndSize      ValueType = 0x000f
)

// EncryptionMethod identifies the sector cipher and, where applicable,
// whether the ELEPHANT diffuser is layered on top of AES-CBC.
type EncryptionMethod uint32

const (
	EncryptionMethodAESCBC128         EncryptionMethod = 0x8000
	EncryptionMethodAESCBC128Diffuser EncryptionMethod = 0x8001
	EncryptionMethodAESCBC256         EncryptionMethod = 0x8002
	EncryptionMethodAESCBC256Diffuser EncryptionMethod = 0x8003
	EncryptionMethodAESXTS128         EncryptionMethod = 0x8004
	EncryptionMethodAESXTS256         EncryptionMethod = 0x8005
)

// Valid reports whether m is one of the six recognized encryption
// methods.
func (m EncryptionMethod) Valid() bool {
	switch m {
	case EncryptionMethodAESCBC128Diffuser, EncryptionMethodAESCBC128,
		EncryptionMethodAESCBC256Diffuser, EncryptionMethodAESCBC256,
		EncryptionMethodAESXTS128, EncryptionMethodAESXTS256:
		return true
	}
	return false
}

// ProtectionType identifies the kind of credential a VMK record is
// wrapped under.
type ProtectionType uint16

const (
	ProtectionTypeClearKey   ProtectionType = 0x0000
	ProtectionTypeTPM        ProtectionType = 0x0100
	ProtectionTypeStartupKey ProtectionType = 0x0200
	ProtectionTypeTPMAndPIN  ProtectionType = 0x0500
	ProtectionTypeRecovery   ProtectionType = 0x0800
	ProtectionTypePassword   ProtectionType = 0x2000
)

// BlockHeader is the 64-byte header that opens every 4096-byte FVE
// metadata block, common to both on-disk versions. Layout:
//
//	offset 0:  signature [8]byte ("-FVE-FS-")
//	offset 8:  version uint16 (1 or 2)
//	offset 10: reserved (6 bytes)
//	offset 16: v1: mft_mirror_cluster_block uint64
//	           v2: volume_size uint64
//	offset 24: v2: volume_header_offset uint64 (v1: reserved)
//	offset 32: first_metadata_offset uint64
//	offset 40: second_metadata_offset uint64
//	offset 48: third_metadata_offset uint64
//	offset 56: v2: number_of_volume_header_sectors uint16 (v1: reserved)
//	offset 58: reserved (6 bytes)
type BlockHeader struct {
	Signature      [8]byte
	Version        uint16
	MFTMirrorBlock uint64 // v1 only
	VolumeSize     uint64 // v2 only
	HeaderOffset   uint64 // v2 only: volume_header_offset
	HeaderSectors  uint16 // v2 only: number_of_volume_header_sectors
	FirstOffset    uint64
	SecondOffset   uint64
	ThirdOffset    uint64
}

// MetadataHeader is the 48-byte structure immediately following the
// block header.
type MetadataHeader struct {
	MetadataSize     uint32
	Version          uint32
	HeaderSize       uint32
	MetadataSizeCopy uint32
	VolumeIdentifier uuid.UUID
	NextNonceCounter uint32
	EncryptionMethod EncryptionMethod
	CreationTime     time.Time
}

// EntryHeader is the 8-byte header opening every TLV entry (top-level
// or nested).
type EntryHeader struct {
	EntrySize uint16
	EntryType EntryType
	ValueType ValueType
	Version   uint16
}
