package bytestream

import "unicode/utf16"

// decodeUTF16 decodes UTF-16 code units into a string, substituting the
// Unicode replacement character for invalid surrogate pairs rather than
// failing outright: a DESCRIPTION entry is display metadata, not a
// security-relevant value.
func decodeUTF16(units []uint16) string {
	runes := utf16.Decode(units)
	return string(runes)
}

// EncodeUTF16LE is the inverse of UTF16LEToString, used by tests that
// build synthetic DESCRIPTION entries.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[i*2] = byte(u)
		b[i*2+1] = byte(u >> 8)
	}
	return b
}
