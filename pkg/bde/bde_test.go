package bde

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbmetz/go-bde/internal/aesprim"
	"github.com/jbmetz/go-bde/internal/discovery"
	"github.com/jbmetz/go-bde/internal/fvemeta"
	"github.com/jbmetz/go-bde/internal/keyderiv"
	"github.com/jbmetz/go-bde/internal/sectorcipher"
)

const testSectorSize = 512

const (
	metadataOffset = 0x4000
	headerOffset   = 0x10000 // relocated physical home of logical sector 0
	imageSize      = headerOffset + testSectorSize
)

// synthVolume is a complete in-memory BitLocker volume image with a
// Seven-layout boot sector, one metadata replica (duplicated across the
// triplet), a password-protected VMK, an AES-XTS FVEK+tweak, and a
// relocated first sector -- enough to exercise Open/Unlock/Read/Close
// end to end.
type synthVolume struct {
	image       []byte
	password    string
	volumeSize  uint64
	plaintext   []byte // the full logical volume contents, for assertions
	numSectors  int
}

func buildSynthVolume(t *testing.T, numSectors int) *synthVolume {
	t.Helper()

	password := "zxcvbnm asdfghjkl qwertyuiop"
	var salt [16]byte
	copy(salt[:], []byte("saltsaltsaltsalt"))
	derivedKey := keyderiv.StretchPassword(password, salt)

	vmkKey := make([]byte, 32)
	for i := range vmkKey {
		vmkKey[i] = byte(i + 1)
	}
	var vmkNonce [aesprim.CCMNonceSize]byte
	copy(vmkNonce[:], []byte("vmknonceabcd"))
	vmkPlain := buildUnwrapped(0x2c, vmkKey)
	vmkCipher, vmkMAC, err := aesprim.Wrap(derivedKey, vmkNonce, vmkPlain)
	require.NoError(t, err)

	fvek := make([]byte, 32)
	tweak := make([]byte, 32)
	for i := range fvek {
		fvek[i] = byte(50 + i)
		tweak[i] = byte(150 + i)
	}
	fvekKeyMaterial := append(append([]byte{}, fvek...), tweak...)
	var fvekNonce [aesprim.CCMNonceSize]byte
	copy(fvekNonce[:], []byte("fveknonceabcd"))
	fvekPlain := buildUnwrapped(0x4c, fvekKeyMaterial) // 0x4c carries a tweak key
	fvekCipher, fvekMAC, err := aesprim.Wrap(vmkKey, fvekNonce, fvekPlain)
	require.NoError(t, err)

	vmkEntry := fvemeta.Entry{
		Header: fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeVolumeMasterKey, ValueType: fvemeta.ValueTypeVolumeMasterKey, Version: 1},
		Payload: fvemeta.VolumeMasterKeyPayload{
			Identifier:     uuid.New(),
			LastModified:   time.Now().UTC(),
			ProtectionType: fvemeta.ProtectionTypePassword,
			Nested: []fvemeta.Entry{
				{
					Header: fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeVolumeMasterKey, ValueType: fvemeta.ValueTypeStretchKey, Version: 1},
					Payload: fvemeta.StretchKeyPayload{
						Salt: salt,
						Nested: []fvemeta.Entry{
							{
								Header:  fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeVolumeMasterKey, ValueType: fvemeta.ValueTypeAESCCMEncryptedKey, Version: 1},
								Payload: fvemeta.AESCCMEncryptedKeyPayload{Nonce: vmkNonce, MAC: vmkMAC, Ciphertext: vmkCipher},
							},
						},
					},
				},
			},
		},
	}
	fvekEntry := fvemeta.Entry{
		Header:  fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeFullVolumeEncryptionKey, ValueType: fvemeta.ValueTypeAESCCMEncryptedKey, Version: 1},
		Payload: fvemeta.AESCCMEncryptedKeyPayload{Nonce: fvekNonce, MAC: fvekMAC, Ciphertext: fvekCipher},
	}
	headerBlockEntry := fvemeta.Entry{
		Header:  fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeVolumeHeaderBlock, ValueType: fvemeta.ValueTypeOffsetAndSize, Version: 1},
		Payload: fvemeta.OffsetAndSizePayload{Offset: headerOffset, Size: testSectorSize},
	}
	descriptionEntry := fvemeta.Entry{
		Header:  fvemeta.EntryHeader{EntryType: fvemeta.EntryTypeDescription, ValueType: fvemeta.ValueTypeUnicodeString, Version: 1},
		Payload: fvemeta.UnicodeStringPayload{Raw: []byte{'t', 0, 'e', 0, 's', 0, 't', 0}},
	}

	entryBytes := fvemeta.EncodeEntries([]fvemeta.Entry{vmkEntry, fvekEntry, headerBlockEntry, descriptionEntry})
	volumeSize := uint64(numSectors * testSectorSize)
	metaHeader := &fvemeta.MetadataHeader{
		MetadataSize:     uint32(fvemeta.MetadataHeaderSize + len(entryBytes)),
		Version:          1,
		HeaderSize:       fvemeta.MetadataHeaderSize,
		MetadataSizeCopy: uint32(fvemeta.MetadataHeaderSize + len(entryBytes)),
		VolumeIdentifier: uuid.New(),
		EncryptionMethod: fvemeta.EncryptionMethodAESXTS256,
		CreationTime:     time.Now().UTC(),
	}
	blockHeader := &fvemeta.BlockHeader{
		Version:      2,
		VolumeSize:   volumeSize,
		HeaderOffset: headerOffset,
		FirstOffset:  metadataOffset,
		SecondOffset: metadataOffset,
		ThirdOffset:  metadataOffset,
	}
	metaBlock := append(append([]byte{}, fvemeta.EncodeBlockHeader(blockHeader)...), fvemeta.EncodeMetadataHeader(metaHeader)...)
	metaBlock = append(metaBlock, entryBytes...)
	for len(metaBlock) < fvemeta.BlockSize {
		metaBlock = append(metaBlock, 0)
	}

	bootSector := discovery.EncodeBootSector(&discovery.Result{
		Layout:     discovery.LayoutSeven,
		Triplet:    [3]uint64{metadataOffset, metadataOffset, metadataOffset},
		SectorSize: testSectorSize,
	})

	engine, err := sectorcipher.New(fvemeta.EncryptionMethodAESXTS256, testSectorSize, fvek, tweak)
	require.NoError(t, err)

	image := make([]byte, imageSize)
	copy(image[0:testSectorSize], bootSector)
	copy(image[metadataOffset:], metaBlock)

	var plaintext []byte
	for s := 0; s < numSectors; s++ {
		sector := make([]byte, testSectorSize)
		for i := range sector {
			sector[i] = byte(s*11 + i)
		}
		plaintext = append(plaintext, sector...)

		logicalOffset := uint64(s * testSectorSize)
		ct, err := engine.EncryptSector(logicalOffset, sector)
		require.NoError(t, err)

		physicalOffset := logicalOffset
		if s == 0 {
			physicalOffset = headerOffset
		}
		copy(image[physicalOffset:physicalOffset+testSectorSize], ct)
	}

	return &synthVolume{image: image, password: password, volumeSize: volumeSize, plaintext: plaintext, numSectors: numSectors}
}

func buildUnwrapped(dataSize uint16, keyMaterial []byte) []byte {
	b := make([]byte, 28+len(keyMaterial))
	b[16], b[17] = byte(dataSize), byte(dataSize>>8)
	b[20], b[21] = 1, 0 // version 1
	copy(b[28:], keyMaterial)
	return b
}

func TestOpenUnlockReadCloseEndToEnd(t *testing.T) {
	sv := buildSynthVolume(t, 8)
	reader := bytes.NewReader(sv.image)

	h, err := Open(reader)
	require.NoError(t, err)

	info := h.LockedInfo()
	assert.Equal(t, sv.volumeSize, info.VolumeSize)
	assert.Equal(t, "test", info.Description)
	assert.Equal(t, fvemeta.EncryptionMethodAESXTS256, info.EncryptionMethod)

	h.SetPassword(sv.password)
	require.NoError(t, h.Unlock())

	got, err := h.Read(0, int(sv.volumeSize))
	require.NoError(t, err)
	assert.Equal(t, sv.plaintext, got)

	require.NoError(t, h.Close())
}

func TestReadBeforeUnlockFails(t *testing.T) {
	sv := buildSynthVolume(t, 2)
	h, err := Open(bytes.NewReader(sv.image))
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Read(0, 10)
	assert.True(t, Is(err, KindLocked))
}

func TestUnlockWrongPasswordFails(t *testing.T) {
	sv := buildSynthVolume(t, 2)
	h, err := Open(bytes.NewReader(sv.image))
	require.NoError(t, err)
	defer h.Close()

	h.SetPassword("definitely the wrong password")
	err = h.Unlock()
	assert.Error(t, err)
}

func TestUnlockWithoutCredentialFails(t *testing.T) {
	sv := buildSynthVolume(t, 2)
	h, err := Open(bytes.NewReader(sv.image))
	require.NoError(t, err)
	defer h.Close()

	err = h.Unlock()
	assert.True(t, Is(err, KindNoMatchingProtector))
}

func TestPartialRangeRead(t *testing.T) {
	sv := buildSynthVolume(t, 4)
	h, err := Open(bytes.NewReader(sv.image))
	require.NoError(t, err)
	defer h.Close()

	h.SetPassword(sv.password)
	require.NoError(t, h.Unlock())

	got, err := h.Read(testSectorSize+100, 50)
	require.NoError(t, err)
	assert.Equal(t, sv.plaintext[testSectorSize+100:testSectorSize+150], got)
}
