// Package keyderiv implements the password and recovery-password key
// stretching that turns a user credential plus a protector's salt into
// the 32-byte AES-CCM key used to unwrap a stretch-protected VMK. Both
// paths run the identical SHA-256 stretch loop; they differ only in how
// the input bytes are produced.
package keyderiv

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/jbmetz/go-bde/internal/aesprim"
	"github.com/jbmetz/go-bde/internal/bytestream"
)

// StretchRounds is the fixed iteration count, 2^20, required by the
// on-disk format. Reproduction of this exact value is required for
// interoperability -- it is not a tunable.
const StretchRounds = 1 << 20

// state mirrors the on-disk stretch state struct: 32-byte running hash,
// 32-byte initial hash, 16-byte salt, 8-byte round counter. Every round
// re-hashes the 88-byte concatenation of these fields.
type state struct {
	last    [32]byte
	initial [32]byte
	salt    [16]byte
	count   uint64
}

func (s *state) bytes() []byte {
	b := make([]byte, 88)
	copy(b[0:32], s.last[:])
	copy(b[32:64], s.initial[:])
	copy(b[64:80], s.salt[:])
	binary.LittleEndian.PutUint64(b[80:88], s.count)
	return b
}

func stretch(initial [32]byte, salt [16]byte) []byte {
	st := &state{initial: initial, salt: salt}
	for i := uint64(0); i < StretchRounds; i++ {
		sum := sha256.Sum256(st.bytes())
		st.last = sum
		st.count++
	}
	out := make([]byte, 32)
	copy(out, st.last[:])
	aesprim.Zero(st.last[:])
	aesprim.Zero(st.initial[:])
	return out
}

// StretchPassword derives the 32-byte AES-CCM key for a PASSWORD
// protector from a UTF-8 password and the protector's 16-byte salt.
// h0 = SHA-256(SHA-256(utf16le(password))), then StretchRounds rounds of
// the shared stretch loop are run seeded with h0.
func StretchPassword(password string, salt [16]byte) []byte {
	utf16le := bytestream.EncodeUTF16LE(password)
	first := sha256.Sum256(utf16le)
	h0 := sha256.Sum256(first[:])
	return stretch(h0, salt)
}

// StretchRecovery derives the 32-byte AES-CCM key for a RECOVERY_KEY
// protector from the 48-digit recovery password (eight groups of six
// decimal digits, conventionally hyphen-separated) and the protector's
// salt.
func StretchRecovery(recovery string, salt [16]byte) ([]byte, error) {
	groups, err := ParseRecoveryGroups(recovery)
	if err != nil {
		return nil, err
	}
	var packed [16]byte
	for i, g := range groups {
		binary.LittleEndian.PutUint16(packed[i*2:], g)
	}
	h0 := sha256.Sum256(packed[:])
	return stretch(h0, salt), nil
}

// ParseRecoveryGroups splits a 48-digit recovery password into its eight
// 16-bit values, validating each 6-digit group g satisfies g%11==0 and
// g/11 <= 0xFFFF. Separators (hyphens, spaces) between groups are
// ignored; only the digit grouping matters.
func ParseRecoveryGroups(recovery string) ([8]uint16, error) {
	var groups [8]uint16
	digitGroups := splitDigitGroups(recovery)
	if len(digitGroups) != 8 {
		return groups, fmt.Errorf("keyderiv: recovery password must have 8 groups of 6 digits, got %d", len(digitGroups))
	}
	for i, g := range digitGroups {
		if len(g) != 6 {
			return groups, fmt.Errorf("keyderiv: recovery group %d must be 6 digits, got %q", i, g)
		}
		v, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			return groups, fmt.Errorf("keyderiv: recovery group %d not numeric: %w", i, err)
		}
		if v%11 != 0 {
			return groups, fmt.Errorf("keyderiv: recovery group %d (%d) is not divisible by 11", i, v)
		}
		divided := v / 11
		if divided > 0xFFFF {
			return groups, fmt.Errorf("keyderiv: recovery group %d (%d/11=%d) exceeds 16 bits", i, v, divided)
		}
		groups[i] = uint16(divided)
	}
	return groups, nil
}

// splitDigitGroups extracts runs of ASCII digits from s, ignoring any
// other separator characters between them.
func splitDigitGroups(s string) []string {
	var groups []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			groups = append(groups, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return groups
}
