package diffuser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleSector() []byte {
	sector := make([]byte, 512)
	for i := range sector {
		sector[i] = byte(i * 13)
	}
	return sector
}

func TestDiffuserARoundTrip(t *testing.T) {
	sector := sampleSector()
	original := append([]byte(nil), sector...)

	EncryptA(sector)
	assert.NotEqual(t, original, sector)

	DecryptA(sector)
	assert.Equal(t, original, sector)
}

func TestDiffuserBRoundTrip(t *testing.T) {
	sector := sampleSector()
	original := append([]byte(nil), sector...)

	EncryptB(sector)
	assert.NotEqual(t, original, sector)

	DecryptB(sector)
	assert.Equal(t, original, sector)
}

func TestDiffuserCombinedRoundTrip(t *testing.T) {
	sector := sampleSector()
	original := append([]byte(nil), sector...)

	EncryptA(sector)
	EncryptB(sector)
	DecryptB(sector)
	DecryptA(sector)
	assert.Equal(t, original, sector)
}

func TestDiffuserSmallSectorNoPanic(t *testing.T) {
	sector := make([]byte, 4) // one 32-bit word: below the 3-word minimum
	assert.NotPanics(t, func() {
		EncryptA(sector)
		DecryptA(sector)
	})
}
