package unlock

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbmetz/go-bde/internal/aesprim"
	"github.com/jbmetz/go-bde/internal/fvemeta"
	"github.com/jbmetz/go-bde/internal/keyderiv"
	"github.com/jbmetz/go-bde/internal/protector"
)

// buildUnwrappedBlock constructs the plaintext layout parseUnwrappedBlock
// expects: a 28-byte header (only data_size and version matter for this
// decoder) followed by keyMaterial.
func buildUnwrappedBlock(dataSize, version uint16, keyMaterial []byte) []byte {
	b := make([]byte, unwrappedHeaderSize+len(keyMaterial))
	binary.LittleEndian.PutUint16(b[16:18], dataSize)
	binary.LittleEndian.PutUint16(b[20:22], version)
	copy(b[unwrappedHeaderSize:], keyMaterial)
	return b
}

// fixture bundles a MetadataSet that will successfully Unlock under
// password "correct horse battery staple", plus the keys it wraps, so
// tests can assert against the derived FVEK/tweak directly.
type fixture struct {
	set      *protector.MetadataSet
	password string
	fvek     []byte
	tweak    []byte
}

func buildFixture(t *testing.T, withTweak bool) *fixture {
	t.Helper()

	password := "correct horse battery staple"
	var salt [16]byte
	copy(salt[:], []byte("0123456789abcdef"))
	derivedKey := keyderiv.StretchPassword(password, salt)

	vmkKey := make([]byte, 32)
	for i := range vmkKey {
		vmkKey[i] = byte(i + 1)
	}
	vmkPlain := buildUnwrappedBlock(0x2c, 1, vmkKey)
	var vmkNonce [aesprim.CCMNonceSize]byte
	copy(vmkNonce[:], []byte("vmknonce1234"))
	vmkCipher, vmkMAC, err := aesprim.Wrap(derivedKey, vmkNonce, vmkPlain)
	require.NoError(t, err)

	fvek := make([]byte, 32)
	for i := range fvek {
		fvek[i] = byte(100 + i)
	}
	var tweak []byte
	var fvekDataSize uint16 = 0x2c
	keyMaterial := fvek
	if withTweak {
		tweak = make([]byte, 32)
		for i := range tweak {
			tweak[i] = byte(200 + i)
		}
		keyMaterial = append(append([]byte{}, fvek...), tweak...)
		fvekDataSize = 0x4c
	}
	fvekPlain := buildUnwrappedBlock(fvekDataSize, 1, keyMaterial)
	var fvekNonce [aesprim.CCMNonceSize]byte
	copy(fvekNonce[:], []byte("fveknonce123"))
	fvekCipher, fvekMAC, err := aesprim.Wrap(vmkKey, fvekNonce, fvekPlain)
	require.NoError(t, err)

	vmk := protector.VMK{
		Identifier:     uuid.New(),
		LastModified:   time.Now().UTC(),
		ProtectionType: fvemeta.ProtectionTypePassword,
		StretchKey: &protector.StretchKeyRecord{
			Salt: salt,
		},
		Envelope: &fvemeta.AESCCMEncryptedKeyPayload{Nonce: vmkNonce, MAC: vmkMAC, Ciphertext: vmkCipher},
	}

	set := &protector.MetadataSet{
		VMKs:         []protector.VMK{vmk},
		FVEKEnvelope: &fvemeta.AESCCMEncryptedKeyPayload{Nonce: fvekNonce, MAC: fvekMAC, Ciphertext: fvekCipher},
	}
	return &fixture{set: set, password: password, fvek: fvek, tweak: tweak}
}

func TestUnlockWithPassword(t *testing.T) {
	fx := buildFixture(t, true)
	keys, err := Unlock(fx.set, Credential{Kind: CredentialPassword, Password: fx.password})
	require.NoError(t, err)
	defer keys.Close()

	assert.Equal(t, fx.fvek, keys.FVEK.Bytes())
	require.NotNil(t, keys.TweakKey)
	assert.Equal(t, fx.tweak, keys.TweakKey.Bytes())
}

func TestUnlockWithoutTweakKey(t *testing.T) {
	fx := buildFixture(t, false)
	keys, err := Unlock(fx.set, Credential{Kind: CredentialPassword, Password: fx.password})
	require.NoError(t, err)
	defer keys.Close()

	assert.Equal(t, fx.fvek, keys.FVEK.Bytes())
	assert.Nil(t, keys.TweakKey)
}

func TestUnlockWrongPasswordFails(t *testing.T) {
	fx := buildFixture(t, true)
	_, err := Unlock(fx.set, Credential{Kind: CredentialPassword, Password: "wrong password entirely"})
	assert.Error(t, err)
}

func TestUnlockNoMatchingProtector(t *testing.T) {
	fx := buildFixture(t, true)
	_, err := Unlock(fx.set, Credential{Kind: CredentialRecoveryPassword, RecoveryPassword: "110000-110000-110000-110000-110000-110000-110000-110000"})
	assert.Error(t, err)
}

func TestUnlockExternalKeyWrongLength(t *testing.T) {
	fx := buildFixture(t, true)
	fx.set.VMKs[0].ProtectionType = fvemeta.ProtectionTypeStartupKey
	_, err := Unlock(fx.set, Credential{Kind: CredentialExternalKey, ExternalKey: []byte{1, 2, 3}})
	assert.Error(t, err)
}

func TestUnlockExternalKeyBypassesStretch(t *testing.T) {
	fx := buildFixture(t, true)
	fx.set.VMKs[0].ProtectionType = fvemeta.ProtectionTypeStartupKey

	var nonce [aesprim.CCMNonceSize]byte
	copy(nonce[:], []byte("extkeynonce1"))
	externalKey := make([]byte, 32)
	for i := range externalKey {
		externalKey[i] = byte(i)
	}
	vmkKey := make([]byte, 32)
	for i := range vmkKey {
		vmkKey[i] = byte(i + 1)
	}
	vmkPlain := buildUnwrappedBlock(0x2c, 1, vmkKey)
	cipher, mac, err := aesprim.Wrap(externalKey, nonce, vmkPlain)
	require.NoError(t, err)
	fx.set.VMKs[0].Envelope = &fvemeta.AESCCMEncryptedKeyPayload{Nonce: nonce, MAC: mac, Ciphertext: cipher}

	// Re-wrap the FVEK under the new vmkKey so the second unwrap stage
	// still succeeds.
	fvekPlain := buildUnwrappedBlock(0x2c, 1, fx.fvek)
	var fvekNonce [aesprim.CCMNonceSize]byte
	copy(fvekNonce[:], []byte("fveknonce123"))
	fvekCipher, fvekMAC, err := aesprim.Wrap(vmkKey, fvekNonce, fvekPlain)
	require.NoError(t, err)
	fx.set.FVEKEnvelope = &fvemeta.AESCCMEncryptedKeyPayload{Nonce: fvekNonce, MAC: fvekMAC, Ciphertext: fvekCipher}

	keys, err := Unlock(fx.set, Credential{Kind: CredentialExternalKey, ExternalKey: externalKey})
	require.NoError(t, err)
	defer keys.Close()
	assert.Equal(t, fx.fvek, keys.FVEK.Bytes())
}
