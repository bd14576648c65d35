// Package bde is the public, read-only API for unlocking and reading a
// BitLocker (FVE) encrypted volume: the "Public handle API" of spec §6.
// It wires together discovery, the metadata block reader, the unlock
// orchestrator, the sector cipher engine, and the volume I/O facade
// behind a single Handle.
package bde

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jbmetz/go-bde/internal/bdeconfig"
	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/discovery"
	"github.com/jbmetz/go-bde/internal/fvemeta"
	"github.com/jbmetz/go-bde/internal/protector"
	"github.com/jbmetz/go-bde/internal/sectorcipher"
	"github.com/jbmetz/go-bde/internal/unlock"
	"github.com/jbmetz/go-bde/internal/volumeio"
	"github.com/jbmetz/go-bde/pkg/logging"
)

// Error is re-exported so callers can branch on failure kind without
// importing the internal package.
type Error = bdeerr.Error

// Kind re-exports the coarse error taxonomy (spec §7).
type Kind = bdeerr.Kind

const (
	KindIO                   = bdeerr.KindIO
	KindBadSignature         = bdeerr.KindBadSignature
	KindUnsupportedVersion   = bdeerr.KindUnsupportedVersion
	KindCorrupt              = bdeerr.KindCorrupt
	KindLocked               = bdeerr.KindLocked
	KindNoMatchingProtector  = bdeerr.KindNoMatchingProtector
	KindWrongCredential      = bdeerr.KindWrongCredential
	KindAuthenticationFailed = bdeerr.KindAuthenticationFailed
	KindUnsupported          = bdeerr.KindUnsupported
)

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool { return bdeerr.Is(err, kind) }

// BackingReader is the interface a caller's volume image or block
// device must satisfy (spec §6).
type BackingReader = volumeio.BackingReader

// unlockState tags whether a Handle's keys are available yet.
type unlockState int

const (
	stateLocked unlockState = iota
	stateUnlocked
)

// LockedInfo is the subset of metadata available without any
// credential: spec §6's locked_info.
type LockedInfo struct {
	Version          uint32
	Identifier       uuid.UUID
	EncryptionMethod fvemeta.EncryptionMethod
	CreationTime     time.Time
	VolumeSize       uint64
	Description      string
}

// Option configures Open.
type Option func(*Handle)

// WithLogger injects a logging sink; the default is logging.Discard().
func WithLogger(l *logging.Logger) Option {
	return func(h *Handle) { h.log = l }
}

// WithConfig overrides the tunables Open would otherwise load via
// bdeconfig.Load.
func WithConfig(cfg *bdeconfig.Config) Option {
	return func(h *Handle) { h.cfg = cfg }
}

// Handle is the opened, possibly unlocked volume (spec §3's "Volume
// handle"). Created by Open, mutated only by Unlock, destroyed by
// Close. Not safe for concurrent Unlock/Close calls; Read is safe for
// concurrent use once Unlock has succeeded (spec §5).
type Handle struct {
	log *logging.Logger
	cfg *bdeconfig.Config

	raw *volumeio.RawReader

	layout  discovery.LayoutVersion
	triplet [3]uint64

	set *protector.MetadataSet

	sectorSize    int
	volumeSize    uint64
	headerBlockOK bool
	headerOffset  uint64
	headerSize    uint64

	cred         unlock.Credential
	credSet      bool
	credRecovery *unlock.Credential // tried after cred on WrongCredential, see Unlock

	state unlockState
	keys  *unlock.Keys
	vol   *volumeio.Volume
}

// Open probes reader for a recognized FVE layout, loads the metadata
// triplet, and resolves it to one authoritative MetadataSet. It does
// not derive any keys: call SetPassword/SetRecoveryPassword/
// SetExternalKey and then Unlock before Read.
func Open(reader BackingReader, opts ...Option) (*Handle, error) {
	const op = "bde.Open"

	h := &Handle{log: logging.Discard()}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg == nil {
		cfg, err := bdeconfig.Load()
		if err != nil {
			return nil, bdeerr.New(op, bdeerr.KindIO, err)
		}
		h.cfg = cfg
	}

	h.raw = volumeio.NewRawReader(reader, volumeio.Positional)

	bootSector, err := h.raw.ReadBootSector()
	if err != nil {
		return nil, err
	}
	probe, err := discovery.Probe(bootSector)
	if err != nil {
		return nil, err
	}
	h.layout = probe.Layout
	h.triplet = probe.Triplet
	h.sectorSize = probe.SectorSize
	if h.cfg.SectorSizeOverride > 0 {
		h.sectorSize = h.cfg.SectorSizeOverride
	}

	if probe.Layout == discovery.LayoutVista {
		// Vista layout: only the first offset is known from the boot
		// sector. Back-fill the second and third from the first
		// metadata block's own embedded triplet (spec §4.1).
		raw, err := h.raw.ReadBlock(h.triplet[0])
		if err != nil {
			return nil, err
		}
		hdr, err := fvemeta.ParseBlockHeader(raw[:fvemeta.BlockHeaderSize])
		if err != nil {
			return nil, err
		}
		h.triplet = [3]uint64{hdr.FirstOffset, hdr.SecondOffset, hdr.ThirdOffset}
		h.log.Debug("backfilled Vista metadata triplet", "triplet", h.triplet)
	}

	set, err := protector.ReadReplicas(h.raw, h.triplet, h.cfg.Policy())
	if err != nil {
		return nil, err
	}
	h.set = set
	volumeSize, err := resolveVolumeSize(set, reader)
	if err != nil {
		return nil, err
	}
	h.volumeSize = volumeSize
	if set.HasHeaderBlock {
		h.headerBlockOK = true
		h.headerOffset = set.HeaderBlockOffset
		h.headerSize = set.HeaderBlockSize
	}

	h.log.Info("opened FVE volume", "layout", h.layout, "identifier", set.Header.VolumeIdentifier, "method", set.Header.EncryptionMethod)
	return h, nil
}

// Sizer is an optional interface a BackingReader may implement to
// report its total byte extent (blockdev.Device does). It is consulted
// only when the metadata block header gives no volume size: v1 (Vista)
// metadata, which has no volume_size field, or a v2 header whose
// volume_size is zero.
type Sizer interface {
	Size() int64
}

// resolveVolumeSize prefers the v2 metadata block header's volume_size
// field; v1 volumes carry no such field, so the backing reader must
// report its own size instead.
func resolveVolumeSize(set *protector.MetadataSet, reader BackingReader) (uint64, error) {
	if set.Block.Version == 2 && set.Block.VolumeSize > 0 {
		return set.Block.VolumeSize, nil
	}
	if sizer, ok := reader.(Sizer); ok {
		size := sizer.Size()
		if size < 0 {
			return 0, bdeerr.New("bde.resolveVolumeSize", bdeerr.KindUnsupported, fmt.Errorf("backing reader reported negative size"))
		}
		return uint64(size), nil
	}
	return 0, bdeerr.New("bde.resolveVolumeSize", bdeerr.KindUnsupported, fmt.Errorf("v1 metadata carries no volume_size and the backing reader does not implement bde.Sizer"))
}

// LockedInfo returns the metadata available without a credential.
func (h *Handle) LockedInfo() LockedInfo {
	return LockedInfo{
		Version:          h.set.Header.Version,
		Identifier:       h.set.Header.VolumeIdentifier,
		EncryptionMethod: h.set.Header.EncryptionMethod,
		CreationTime:     h.set.Header.CreationTime,
		VolumeSize:       h.volumeSize,
		Description:      h.set.Description,
	}
}

// SetPassword configures Unlock to try a user password protector.
func (h *Handle) SetPassword(password string) {
	h.cred = unlock.Credential{Kind: unlock.CredentialPassword, Password: password}
	h.credSet = true
}

// SetRecoveryPassword configures Unlock to try the 48-digit recovery
// password protector.
func (h *Handle) SetRecoveryPassword(recovery string) {
	h.cred = unlock.Credential{Kind: unlock.CredentialRecoveryPassword, RecoveryPassword: recovery}
	h.credSet = true
}

// SetExternalKey configures Unlock to try a raw 32-byte external-key
// (startup key) protector.
func (h *Handle) SetExternalKey(key []byte) {
	h.cred = unlock.Credential{Kind: unlock.CredentialExternalKey, ExternalKey: append([]byte(nil), key...)}
	h.credSet = true
}

// SetRecoveryFallback configures Unlock to also try a recovery password
// if the primary credential set via SetPassword/SetExternalKey returns
// WrongCredential (spec §4.6: "if both password and recovery are
// supplied, try password first").
func (h *Handle) SetRecoveryFallback(recovery string) {
	h.credRecovery = &unlock.Credential{Kind: unlock.CredentialRecoveryPassword, RecoveryPassword: recovery}
}

// Unlock derives the FVEK (and tweak key, for AES-XTS volumes) from
// the configured credential and builds the decrypted read path.
func (h *Handle) Unlock() error {
	const op = "bde.Unlock"
	if !h.credSet {
		return bdeerr.New(op, bdeerr.KindNoMatchingProtector, fmt.Errorf("no credential configured: call SetPassword/SetRecoveryPassword/SetExternalKey first"))
	}

	keys, err := unlock.Unlock(h.set, h.cred)
	if err != nil && h.credRecovery != nil && bdeerr.Is(err, bdeerr.KindWrongCredential) {
		h.log.Debug("primary credential failed, trying recovery fallback")
		keys, err = unlock.Unlock(h.set, *h.credRecovery)
	}
	if err != nil {
		h.log.Error(err, "unlock failed")
		return err
	}

	engine, err := sectorcipher.New(h.set.Header.EncryptionMethod, h.sectorSize, keys.FVEK.Bytes(), tweakBytes(keys))
	if err != nil {
		keys.Close()
		return err
	}

	relocation := volumeio.Relocation{}
	if h.headerBlockOK {
		relocation = volumeio.Relocation{Active: true, Offset: h.headerOffset, Size: h.headerSize}
	}

	h.vol = volumeio.New(h.raw, engine, h.volumeSize, relocation)
	h.keys = keys
	h.state = stateUnlocked
	h.log.Info("unlocked FVE volume")
	return nil
}

func tweakBytes(keys *unlock.Keys) []byte {
	if keys.TweakKey == nil {
		return nil
	}
	return keys.TweakKey.Bytes()
}

// Read returns the decrypted bytes in [offset, offset+n) of the
// logical volume, truncated at the end of the volume. Fails with
// KindLocked if called before Unlock.
func (h *Handle) Read(offset uint64, n int) ([]byte, error) {
	if h.state != stateUnlocked {
		return nil, bdeerr.New("bde.Read", bdeerr.KindLocked, fmt.Errorf("volume is locked"))
	}
	return h.vol.Read(offset, n)
}

// Close zeroizes the FVEK/tweak key and releases the read path. Safe
// to call on a still-locked Handle.
func (h *Handle) Close() error {
	if h.vol != nil {
		h.vol.Close()
	}
	if h.keys != nil {
		h.keys.Close()
	}
	h.state = stateLocked
	return nil
}
