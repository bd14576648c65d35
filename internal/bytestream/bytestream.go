// Package bytestream implements the little-endian integer, GUID, and
// FILETIME decode primitives consumed by every higher layer of the
// metadata parser. Reference: page layouts in spec §3/§6 of the FVE
// on-disk format (metadata block header, metadata header, entry header).
package bytestream

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Signature is the 8-byte ASCII marker that opens every FVE metadata
// block and the Vista/Seven/ToGo boot sector layouts: "-FVE-FS-".
var Signature = [8]byte{'-', 'F', 'V', 'E', '-', 'F', 'S', '-'}

// HasSignature reports whether b begins with the FVE signature.
func HasSignature(b []byte) bool {
	if len(b) < len(Signature) {
		return false
	}
	for i := range Signature {
		if b[i] != Signature[i] {
			return false
		}
	}
	return true
}

// Uint16 decodes a little-endian uint16 at offset off, erroring if b is
// too short.
func Uint16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, fmt.Errorf("bytestream: uint16 at %d: out of bounds (len %d)", off, len(b))
	}
	return binary.LittleEndian.Uint16(b[off:]), nil
}

// Uint32 decodes a little-endian uint32 at offset off.
func Uint32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, fmt.Errorf("bytestream: uint32 at %d: out of bounds (len %d)", off, len(b))
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

// Uint64 decodes a little-endian uint64 at offset off.
func Uint64(b []byte, off int) (uint64, error) {
	if off < 0 || off+8 > len(b) {
		return 0, fmt.Errorf("bytestream: uint64 at %d: out of bounds (len %d)", off, len(b))
	}
	return binary.LittleEndian.Uint64(b[off:]), nil
}

// GUID decodes the 16-byte mixed-endian Windows GUID encoding found in
// FVE metadata (data1/data2/data3 little-endian, data4 big-endian) at
// offset off.
func GUID(b []byte, off int) (uuid.UUID, error) {
	if off < 0 || off+16 > len(b) {
		return uuid.UUID{}, fmt.Errorf("bytestream: guid at %d: out of bounds (len %d)", off, len(b))
	}
	raw := b[off : off+16]
	var mixed [16]byte
	binary.BigEndian.PutUint32(mixed[0:4], binary.LittleEndian.Uint32(raw[0:4]))
	binary.BigEndian.PutUint16(mixed[4:6], binary.LittleEndian.Uint16(raw[4:6]))
	binary.BigEndian.PutUint16(mixed[6:8], binary.LittleEndian.Uint16(raw[6:8]))
	copy(mixed[8:16], raw[8:16])
	return uuid.FromBytes(mixed[:])
}

// PutGUID encodes id back into the mixed-endian on-disk representation,
// the inverse of GUID. Used by round-trip tests.
func PutGUID(b []byte, off int, id uuid.UUID) {
	raw := id[:]
	binary.LittleEndian.PutUint32(b[off:off+4], binary.BigEndian.Uint32(raw[0:4]))
	binary.LittleEndian.PutUint16(b[off+4:off+6], binary.BigEndian.Uint16(raw[4:6]))
	binary.LittleEndian.PutUint16(b[off+6:off+8], binary.BigEndian.Uint16(raw[6:8]))
	copy(b[off+8:off+16], raw[8:16])
}

// filetimeEpochOffset100ns is the number of 100ns intervals between the
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochOffset100ns = 116444736000000000

// FILETIME decodes a little-endian Windows FILETIME (100ns intervals
// since 1601-01-01) at offset off into a time.Time.
func FILETIME(b []byte, off int) (time.Time, error) {
	raw, err := Uint64(b, off)
	if err != nil {
		return time.Time{}, err
	}
	return FiletimeToTime(raw), nil
}

// FiletimeToTime converts a raw FILETIME value to a time.Time.
func FiletimeToTime(raw uint64) time.Time {
	if raw < filetimeEpochOffset100ns {
		return time.Unix(0, 0).UTC()
	}
	unix100ns := int64(raw - filetimeEpochOffset100ns)
	return time.Unix(unix100ns/10000000, (unix100ns%10000000)*100).UTC()
}

// TimeToFiletime is the inverse of FiletimeToTime, used by round-trip
// tests and encoders.
func TimeToFiletime(t time.Time) uint64 {
	unix100ns := t.UnixNano() / 100
	return uint64(unix100ns) + filetimeEpochOffset100ns
}

// UTF16LEToString decodes a UTF-16LE byte slice (no terminator) into a
// Go string. Decoding is lazy: callers should only invoke this when the
// description is actually surfaced, not during entry decode.
func UTF16LEToString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("bytestream: utf16le: odd length %d", len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return decodeUTF16(units), nil
}
