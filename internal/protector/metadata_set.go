// Package protector builds the VMK/FVEK domain model (spec §3's
// "Protector / key-store model") on top of the raw TLV entry tree
// decoded by fvemeta, and the block reader that picks an authoritative
// replica out of the metadata triplet (spec §4.2).
package protector

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/fvemeta"
)

// StretchKeyRecord is the salted stretch parameters attached to a VMK
// protector. Inner is structurally required (the on-disk format always
// nests exactly one AES_CCM_ENCRYPTED_KEY inside a STRETCH_KEY) but is
// not consumed by the unlock path, which unwraps the VMK record's own
// Envelope instead.
type StretchKeyRecord struct {
	EncryptionMethod uint32
	Salt             [16]byte
	Inner            fvemeta.AESCCMEncryptedKeyPayload
}

// VMK is one VOLUME_MASTER_KEY record: a protector-specific wrapping of
// the volume master key.
type VMK struct {
	Identifier     uuid.UUID
	LastModified   time.Time
	ProtectionType fvemeta.ProtectionType
	StretchKey     *StretchKeyRecord
	Envelope       *fvemeta.AESCCMEncryptedKeyPayload
}

// MetadataSet is the parsed result of one authoritative FVE metadata
// block: the header plus the projections the unlock orchestrator and
// the sector cipher engine need.
type MetadataSet struct {
	Block   fvemeta.BlockHeader
	Header  fvemeta.MetadataHeader
	Entries []fvemeta.Entry

	VMKs []VMK

	FVEKEnvelope          *fvemeta.AESCCMEncryptedKeyPayload
	SecondaryFVEKEnvelope *fvemeta.AESCCMEncryptedKeyPayload // entry type 0x000b, recognized but unused

	Description       string
	HasHeaderBlock    bool
	HeaderBlockOffset uint64
	HeaderBlockSize   uint64
}

// DiskPasswordVMK returns the first VMK protected by a numerical
// recovery password, or nil.
func (m *MetadataSet) DiskPasswordVMK() *VMK {
	return m.findVMK(fvemeta.ProtectionTypeRecovery)
}

// ExternalKeyVMK returns the first VMK protected by a user password, or
// nil (the key is derived from a user secret, as opposed to a TPM).
func (m *MetadataSet) ExternalKeyVMK() *VMK {
	return m.findVMK(fvemeta.ProtectionTypePassword)
}

// VMKByProtection returns the first VMK record protected by kind, or
// nil.
func (m *MetadataSet) VMKByProtection(kind fvemeta.ProtectionType) *VMK {
	return m.findVMK(kind)
}

func (m *MetadataSet) findVMK(kind fvemeta.ProtectionType) *VMK {
	for i := range m.VMKs {
		if m.VMKs[i].ProtectionType == kind {
			return &m.VMKs[i]
		}
	}
	return nil
}

// Build walks the decoded entry tree of one metadata block into a
// MetadataSet.
func Build(header *fvemeta.MetadataHeader, entries []fvemeta.Entry) (*MetadataSet, error) {
	const op = "protector.Build"
	set := &MetadataSet{Header: *header, Entries: entries}

	for _, e := range entries {
		switch e.Header.EntryType {
		case fvemeta.EntryTypeVolumeMasterKey:
			vmk, err := buildVMK(e)
			if err != nil {
				return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
			}
			set.VMKs = append(set.VMKs, *vmk)

		case fvemeta.EntryTypeFullVolumeEncryptionKey:
			p, ok := e.Payload.(fvemeta.AESCCMEncryptedKeyPayload)
			if !ok {
				return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("FVEK entry has unexpected value type %v", e.Header.ValueType))
			}
			pc := p
			set.FVEKEnvelope = &pc

		case fvemeta.EntryTypeSecondaryFVEK:
			// Recognized but reserved: parsed for structural fidelity,
			// never consumed by the unlock path (see spec's "TODO store
			// key somewhere" note, decided in DESIGN.md).
			if p, ok := e.Payload.(fvemeta.AESCCMEncryptedKeyPayload); ok {
				pc := p
				set.SecondaryFVEKEnvelope = &pc
			}

		case fvemeta.EntryTypeDescription:
			if p, ok := e.Payload.(fvemeta.UnicodeStringPayload); ok {
				s, err := decodeDescription(p)
				if err == nil {
					set.Description = s
				}
			}

		case fvemeta.EntryTypeVolumeHeaderBlock:
			if p, ok := e.Payload.(fvemeta.OffsetAndSizePayload); ok {
				set.HasHeaderBlock = true
				set.HeaderBlockOffset = p.Offset
				set.HeaderBlockSize = p.Size
			}
		}
	}

	if set.FVEKEnvelope == nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("no FULL_VOLUME_ENCRYPTION_KEY entry present"))
	}
	return set, nil
}

func buildVMK(e fvemeta.Entry) (*VMK, error) {
	p, ok := e.Payload.(fvemeta.VolumeMasterKeyPayload)
	if !ok {
		return nil, fmt.Errorf("VOLUME_MASTER_KEY entry has unexpected value type %v", e.Header.ValueType)
	}
	vmk := &VMK{
		Identifier:     p.Identifier,
		LastModified:   p.LastModified,
		ProtectionType: p.ProtectionType,
	}
	for _, nested := range p.Nested {
		switch v := nested.Payload.(type) {
		case fvemeta.StretchKeyPayload:
			sk, err := buildStretchKey(v)
			if err != nil {
				return nil, err
			}
			vmk.StretchKey = sk
		case fvemeta.AESCCMEncryptedKeyPayload:
			vc := v
			vmk.Envelope = &vc
		}
	}
	return vmk, nil
}

func buildStretchKey(p fvemeta.StretchKeyPayload) (*StretchKeyRecord, error) {
	var inner *fvemeta.AESCCMEncryptedKeyPayload
	for _, nested := range p.Nested {
		if v, ok := nested.Payload.(fvemeta.AESCCMEncryptedKeyPayload); ok {
			vc := v
			inner = &vc
			break
		}
	}
	if inner == nil {
		return nil, fmt.Errorf("STRETCH_KEY entry missing its nested AES_CCM_ENCRYPTED_KEY")
	}
	return &StretchKeyRecord{
		EncryptionMethod: p.EncryptionMethod,
		Salt:             p.Salt,
		Inner:            *inner,
	}, nil
}
