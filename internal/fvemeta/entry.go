package fvemeta

import (
	"time"

	"github.com/google/uuid"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/bytestream"
)

// Entry is one decoded TLV record: a header plus a typed payload. The
// payload's concrete type is determined by Header.ValueType; see the
// Value* types below. Unknown value types decode to RawPayload and are
// retained in the stream but never projected into a protector.
type Entry struct {
	Header  EntryHeader
	Payload interface{}
}

// RawPayload holds the payload of an entry whose value type was not
// recognized, or whose value type carries no further structure
// (ERASED, KEY, TPM_ENCODED_KEY, USE_KEY, VALIDATION, EXTERNAL_KEY,
// UPDATE, ERROR_LOG): the opaque bytes are preserved verbatim.
type RawPayload struct {
	Bytes []byte
}

// UnicodeStringPayload holds an undecoded UTF-16LE byte run; call
// bytestream.UTF16LEToString on Raw when the string is actually needed.
type UnicodeStringPayload struct {
	Raw []byte
}

// OffsetAndSizePayload is the two-LE-uint64 value used by
// VOLUME_HEADER_BLOCK entries to locate the relocated volume header.
type OffsetAndSizePayload struct {
	Offset uint64
	Size   uint64
}

// AESCCMEncryptedKeyPayload is {nonce[12], mac[16], ciphertext[...]}.
type AESCCMEncryptedKeyPayload struct {
	Nonce      [12]byte
	MAC        [16]byte
	Ciphertext []byte
}

// StretchKeyPayload is {encryption_method u32, salt[16], nested
// entries...}. The nested entries must include exactly one
// AES_CCM_ENCRYPTED_KEY entry whose ciphertext is the stretch key.
type StretchKeyPayload struct {
	EncryptionMethod uint32
	Salt             [16]byte
	Nested           []Entry
}

// VolumeMasterKeyPayload is the payload of an entry whose ValueType is
// VOLUME_MASTER_KEY: a VMK record header followed by nested entries (a
// STRETCH_KEY and/or an AES_CCM_ENCRYPTED_KEY).
type VolumeMasterKeyPayload struct {
	Identifier     uuid.UUID
	LastModified   time.Time
	ProtectionType ProtectionType
	Nested         []Entry
}

// maxNestingDepth bounds recursive entry decode: the on-disk tree is at
// most VOLUME_MASTER_KEY -> STRETCH_KEY -> AES_CCM_ENCRYPTED_KEY, depth
// 3. Anything deeper indicates corrupt or hostile input.
const maxNestingDepth = 6

// DecodeEntries parses payload as a concatenation of TLV entries. The
// decoder is total on well-formed input: the sum of consumed bytes
// equals len(payload) exactly, or decoding stops with an error.
func DecodeEntries(payload []byte) ([]Entry, error) {
	return decodeEntries(payload, 0)
}

func decodeEntries(payload []byte, depth int) ([]Entry, error) {
	const op = "fvemeta.DecodeEntries"
	if depth > maxNestingDepth {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTooDeep)
	}

	var entries []Entry
	remaining := payload
	for len(remaining) > 0 {
		if len(remaining) < 8 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		size, err := bytestream.Uint16(remaining, 0)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		if size < 8 || int(size) > len(remaining) {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		entryType, err := bytestream.Uint16(remaining, 2)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		valueType, err := bytestream.Uint16(remaining, 4)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		version, err := bytestream.Uint16(remaining, 6)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}

		header := EntryHeader{
			EntrySize: size,
			EntryType: EntryType(entryType),
			ValueType: ValueType(valueType),
			Version:   version,
		}
		body := remaining[8:size]

		payloadValue, err := decodeValue(header, body, depth)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Header: header, Payload: payloadValue})

		remaining = remaining[size:]
	}
	return entries, nil
}

func decodeValue(header EntryHeader, body []byte, depth int) (interface{}, error) {
	const op = "fvemeta.decodeValue"
	switch header.ValueType {
	case ValueTypeUnicodeString:
		return UnicodeStringPayload{Raw: append([]byte(nil), body...)}, nil

	case ValueTypeOffsetAndSize:
		if len(body) < 16 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		off, _ := bytestream.Uint64(body, 0)
		sz, _ := bytestream.Uint64(body, 8)
		return OffsetAndSizePayload{Offset: off, Size: sz}, nil

	case ValueTypeAESCCMEncryptedKey:
		if len(body) < 12+16 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		var p AESCCMEncryptedKeyPayload
		copy(p.Nonce[:], body[0:12])
		copy(p.MAC[:], body[12:28])
		p.Ciphertext = append([]byte(nil), body[28:]...)
		return p, nil

	case ValueTypeStretchKey:
		if len(body) < 4+16 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		method, _ := bytestream.Uint32(body, 0)
		var p StretchKeyPayload
		p.EncryptionMethod = method
		copy(p.Salt[:], body[4:20])
		nested, err := decodeEntries(body[20:], depth+1)
		if err != nil {
			return nil, err
		}
		p.Nested = nested
		return p, nil

	case ValueTypeVolumeMasterKey:
		if len(body) < 16+8+2 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, errTruncatedEntry)
		}
		id, err := bytestream.GUID(body, 0)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		lastModified, err := bytestream.FILETIME(body, 16)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		protType, err := bytestream.Uint16(body, 24)
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
		}
		// Bytes [26:28) are reserved padding before the nested entries.
		nestedStart := 28
		if nestedStart > len(body) {
			nestedStart = len(body)
		}
		nested, err := decodeEntries(body[nestedStart:], depth+1)
		if err != nil {
			return nil, err
		}
		return VolumeMasterKeyPayload{
			Identifier:     id,
			LastModified:   lastModified,
			ProtectionType: ProtectionType(protType),
			Nested:         nested,
		}, nil

	default:
		// ERASED, KEY, USE_KEY, TPM_ENCODED_KEY, VALIDATION,
		// EXTERNAL_KEY, UPDATE, ERROR_LOG, and any unrecognized value
		// type: recognized but reserved, or genuinely unknown. Either
		// way the bytes are preserved, not interpreted.
		return RawPayload{Bytes: append([]byte(nil), body...)}, nil
	}
}
