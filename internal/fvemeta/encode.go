package fvemeta

import "github.com/jbmetz/go-bde/internal/bytestream"

// EncodeEntries is the inverse of DecodeEntries, used by round-trip
// tests and by the synthetic fixtures the unlock/sectorcipher tests
// build. EncodeEntries(DecodeEntries(b)) == b for any well-formed b.
func EncodeEntries(entries []Entry) []byte {
	var out []byte
	for _, e := range entries {
		out = append(out, EncodeEntry(e)...)
	}
	return out
}

// EncodeEntry encodes a single entry, recomputing EntrySize from the
// encoded body rather than trusting Header.EntrySize.
func EncodeEntry(e Entry) []byte {
	body := encodeValue(e.Header.ValueType, e.Payload)
	size := uint16(8 + len(body))

	out := make([]byte, 8, int(size))
	putUint16(out, 0, size)
	putUint16(out, 2, uint16(e.Header.EntryType))
	putUint16(out, 4, uint16(e.Header.ValueType))
	putUint16(out, 6, e.Header.Version)
	out = append(out, body...)
	return out
}

func encodeValue(vt ValueType, payload interface{}) []byte {
	switch vt {
	case ValueTypeUnicodeString:
		p := payload.(UnicodeStringPayload)
		return append([]byte(nil), p.Raw...)

	case ValueTypeOffsetAndSize:
		p := payload.(OffsetAndSizePayload)
		b := make([]byte, 16)
		putUint64(b, 0, p.Offset)
		putUint64(b, 8, p.Size)
		return b

	case ValueTypeAESCCMEncryptedKey:
		p := payload.(AESCCMEncryptedKeyPayload)
		b := make([]byte, 28+len(p.Ciphertext))
		copy(b[0:12], p.Nonce[:])
		copy(b[12:28], p.MAC[:])
		copy(b[28:], p.Ciphertext)
		return b

	case ValueTypeStretchKey:
		p := payload.(StretchKeyPayload)
		b := make([]byte, 20)
		putUint32(b, 0, p.EncryptionMethod)
		copy(b[4:20], p.Salt[:])
		return append(b, EncodeEntries(p.Nested)...)

	case ValueTypeVolumeMasterKey:
		p := payload.(VolumeMasterKeyPayload)
		b := make([]byte, 28)
		bytestream.PutGUID(b, 0, p.Identifier)
		putUint64(b, 16, bytestream.TimeToFiletime(p.LastModified))
		putUint16(b, 24, uint16(p.ProtectionType))
		return append(b, EncodeEntries(p.Nested)...)

	default:
		p := payload.(RawPayload)
		return append([]byte(nil), p.Bytes...)
	}
}
