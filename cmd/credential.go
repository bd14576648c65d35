package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbmetz/go-bde/pkg/bde"
)

// credentialFlags holds the three credential flags registered by mount.
// --password and --external-key each set the handle's primary credential
// (when both are given, --external-key replaces --password);
// --recovery-password is the primary credential when neither is given
// and the recovery fallback otherwise.
type credentialFlags struct {
	password         string
	recoveryPassword string
	externalKeyHex   string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.password, "password", "", "user password protector")
	cmd.Flags().StringVar(&f.recoveryPassword, "recovery-password", "", "48-digit recovery password protector")
	cmd.Flags().StringVar(&f.externalKeyHex, "external-key", "", "32-byte external/startup key protector, hex-encoded")
}

func (f *credentialFlags) apply(h *bde.Handle) error {
	set := 0
	if f.password != "" {
		h.SetPassword(f.password)
		set++
	}
	if f.externalKeyHex != "" {
		key, err := hex.DecodeString(f.externalKeyHex)
		if err != nil {
			return fmt.Errorf("decoding --external-key: %w", err)
		}
		h.SetExternalKey(key)
		set++
	}
	if f.recoveryPassword != "" {
		if set == 0 {
			h.SetRecoveryPassword(f.recoveryPassword)
		} else {
			h.SetRecoveryFallback(f.recoveryPassword)
		}
		set++
	}
	if set == 0 {
		return fmt.Errorf("one of --password, --recovery-password, or --external-key is required")
	}
	return nil
}
