package keyderiv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecoveryGroupsValid(t *testing.T) {
	// Every group must be a multiple of 11 and the quotient must fit in
	// 16 bits; 110000/11=10000 satisfies both for all eight groups.
	recovery := "110000-110000-110000-110000-110000-110000-110000-110000"
	groups, err := ParseRecoveryGroups(recovery)
	require.NoError(t, err)
	for _, g := range groups {
		assert.Equal(t, uint16(10000), g)
	}
}

func TestParseRecoveryGroupsIgnoresSeparators(t *testing.T) {
	withHyphens := "110000-110000-110000-110000-110000-110000-110000-110000"
	withSpaces := "110000 110000 110000 110000 110000 110000 110000 110000"
	g1, err := ParseRecoveryGroups(withHyphens)
	require.NoError(t, err)
	g2, err := ParseRecoveryGroups(withSpaces)
	require.NoError(t, err)
	assert.Equal(t, g1, g2)
}

func TestParseRecoveryGroupsWrongGroupCount(t *testing.T) {
	_, err := ParseRecoveryGroups("110000-110000-110000")
	assert.Error(t, err)
}

func TestParseRecoveryGroupsNotDivisibleByEleven(t *testing.T) {
	_, err := ParseRecoveryGroups("123456-110000-110000-110000-110000-110000-110000-110000")
	assert.Error(t, err)
}

func TestParseRecoveryGroupsExceeds16Bits(t *testing.T) {
	// 999999 is divisible by 11 -> 90909, which exceeds 0xFFFF (65535).
	_, err := ParseRecoveryGroups("999999-110000-110000-110000-110000-110000-110000-110000")
	assert.Error(t, err)
}

func TestStretchPasswordDeterministic(t *testing.T) {
	salt := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	k1 := StretchPassword("correct horse battery staple", salt)
	k2 := StretchPassword("correct horse battery staple", salt)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestStretchPasswordDifferentSaltDifferentKey(t *testing.T) {
	var saltA, saltB [16]byte
	saltB[0] = 1
	k1 := StretchPassword("same password", saltA)
	k2 := StretchPassword("same password", saltB)
	assert.NotEqual(t, k1, k2)
}

func TestStretchRecoveryDeterministic(t *testing.T) {
	salt := [16]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	recovery := "110000-110000-110000-110000-110000-110000-110000-110000"
	k1, err := StretchRecovery(recovery, salt)
	require.NoError(t, err)
	k2, err := StretchRecovery(recovery, salt)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestStretchRecoveryInvalidInput(t *testing.T) {
	var salt [16]byte
	_, err := StretchRecovery("not-a-valid-recovery-key", salt)
	assert.Error(t, err)
}
