// Package unlock implements the unlock orchestrator: selecting a
// protector for a supplied credential, running the key-stretch
// derivation, and unwrapping first the Volume Master Key and then the
// Full Volume Encryption Key (and, on AES-XTS volumes, the tweak key).
package unlock

import (
	"fmt"

	"github.com/jbmetz/go-bde/internal/aesprim"
	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/fvemeta"
	"github.com/jbmetz/go-bde/internal/keyderiv"
	"github.com/jbmetz/go-bde/internal/protector"
)

// CredentialKind selects which protector family a Credential targets.
type CredentialKind int

const (
	CredentialPassword CredentialKind = iota
	CredentialRecoveryPassword
	CredentialExternalKey
)

// Credential is the user-supplied unlock input. Exactly the field
// matching Kind is read.
type Credential struct {
	Kind             CredentialKind
	Password         string
	RecoveryPassword string
	ExternalKey      []byte // raw 32-byte AES-CCM key, for a startup-key protector
}

// Keys is the result of a successful unlock: the FVEK, and for
// AES-XTS volumes the tweak key.
type Keys struct {
	FVEK     *aesprim.Secret
	TweakKey *aesprim.Secret // nil unless the FVEK envelope carried a 0x4c block
}

// Close zeroizes every secret held by k.
func (k *Keys) Close() {
	if k.FVEK != nil {
		k.FVEK.Close()
	}
	if k.TweakKey != nil {
		k.TweakKey.Close()
	}
}

// Unlock selects the VMK protector matching cred's kind, derives the
// AES-CCM key, unwraps the VMK, and then unwraps the FVEK envelope.
func Unlock(set *protector.MetadataSet, cred Credential) (*Keys, error) {
	const op = "unlock.Unlock"

	vmk, derivedKey, err := selectAndDerive(set, cred)
	if err != nil {
		return nil, err
	}
	defer derivedKey.Close()

	if vmk.Envelope == nil {
		return nil, bdeerr.New(op, bdeerr.KindNoMatchingProtector, fmt.Errorf("matched VMK record has no AES-CCM envelope"))
	}

	vmkPlain, err := aesprim.Unwrap(derivedKey.Bytes(), vmk.Envelope.Nonce, vmk.Envelope.MAC, vmk.Envelope.Ciphertext)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindWrongCredential, err)
	}
	vmkSecret := aesprim.SecretFrom(vmkPlain)
	defer vmkSecret.Close()

	vmkBlock, err := parseUnwrappedBlock(vmkSecret.Bytes())
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindWrongCredential, err)
	}
	if vmkBlock.Version != 1 || vmkBlock.DataSize != 0x2c {
		return nil, bdeerr.New(op, bdeerr.KindWrongCredential, fmt.Errorf("unwrapped VMK block header malformed (version=%d data_size=0x%x)", vmkBlock.Version, vmkBlock.DataSize))
	}
	vmkKey := aesprim.SecretFrom(vmkBlock.KeyMaterial)
	defer vmkKey.Close()

	if set.FVEKEnvelope == nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata set has no FVEK envelope"))
	}
	fvekPlain, err := aesprim.Unwrap(vmkKey.Bytes(), set.FVEKEnvelope.Nonce, set.FVEKEnvelope.MAC, set.FVEKEnvelope.Ciphertext)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindAuthenticationFailed, err)
	}
	fvekSecret := aesprim.SecretFrom(fvekPlain)
	defer fvekSecret.Close()

	fvekBlock, err := parseUnwrappedBlock(fvekSecret.Bytes())
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	switch fvekBlock.DataSize {
	case 0x1c, 0x2c, 0x4c:
	default:
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("FVEK block has unrecognized data_size 0x%x", fvekBlock.DataSize))
	}

	keys := &Keys{FVEK: aesprim.SecretFrom(fvekBlock.KeyMaterial[:min(32, len(fvekBlock.KeyMaterial))])}
	if fvekBlock.DataSize == 0x4c {
		keys.TweakKey = aesprim.SecretFrom(fvekBlock.KeyMaterial[32:64])
	}
	return keys, nil
}

func selectAndDerive(set *protector.MetadataSet, cred Credential) (*protector.VMK, *aesprim.Secret, error) {
	const op = "unlock.selectAndDerive"

	var kind fvemeta.ProtectionType
	switch cred.Kind {
	case CredentialPassword:
		kind = fvemeta.ProtectionTypePassword
	case CredentialRecoveryPassword:
		kind = fvemeta.ProtectionTypeRecovery
	case CredentialExternalKey:
		kind = fvemeta.ProtectionTypeStartupKey
	default:
		return nil, nil, bdeerr.New(op, bdeerr.KindUnsupported, fmt.Errorf("unrecognized credential kind %d", cred.Kind))
	}

	vmk := set.VMKByProtection(kind)
	if vmk == nil {
		return nil, nil, bdeerr.New(op, bdeerr.KindNoMatchingProtector, fmt.Errorf("no VMK record protected by %v", kind))
	}

	if cred.Kind == CredentialExternalKey {
		if len(cred.ExternalKey) != 32 {
			return nil, nil, bdeerr.New(op, bdeerr.KindUnsupported, fmt.Errorf("external key must be 32 bytes, got %d", len(cred.ExternalKey)))
		}
		return vmk, aesprim.SecretFrom(append([]byte(nil), cred.ExternalKey...)), nil
	}

	if vmk.StretchKey == nil {
		return nil, nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("matched VMK record has no stretch key salt"))
	}

	switch cred.Kind {
	case CredentialPassword:
		derived := keyderiv.StretchPassword(cred.Password, vmk.StretchKey.Salt)
		return vmk, aesprim.SecretFrom(derived), nil
	case CredentialRecoveryPassword:
		derived, err := keyderiv.StretchRecovery(cred.RecoveryPassword, vmk.StretchKey.Salt)
		if err != nil {
			return nil, nil, bdeerr.New(op, bdeerr.KindWrongCredential, err)
		}
		return vmk, aesprim.SecretFrom(derived), nil
	}
	panic("unreachable")
}
