// Package discovery implements the signature probe (spec §4.1): reading
// the first 512 bytes of a volume and recognizing one of the three
// on-disk starts BitLocker uses, yielding enough information (the
// metadata triplet, or a path to find it) to hand off to the block
// reader.
package discovery

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/bytestream"
)

// LayoutVersion distinguishes the three recognized boot sector
// encodings.
type LayoutVersion int

const (
	// LayoutVista marks an NTFS boot sector whose OEM id was replaced
	// with the FVE signature. Only the first metadata offset is known
	// from the boot sector itself; the second and third are discovered
	// from the first metadata block.
	LayoutVista LayoutVersion = iota
	// LayoutSeven marks a Windows 7+ (v2) boot sector carrying the
	// full triplet directly.
	LayoutSeven
	// LayoutToGo marks a BitLocker To Go (removable media) v2 boot
	// sector, structurally identical to LayoutSeven but carrying a
	// distinct marker GUID.
	LayoutToGo
)

// Result is the outcome of a successful probe.
type Result struct {
	Layout     LayoutVersion
	Triplet    [3]uint64 // for LayoutVista, [1] and [2] are zero until back-filled
	SectorSize int
}

const bootSectorSize = 512

// Boot-sector byte offsets. These are this module's own fixed layout
// for the boot sector's metadata pointers (an MBR-like sector carrying
// up to three absolute 64-bit offsets); the signature offset matches
// where BitLocker actually overwrites the NTFS OEM id field in a real
// volume.
const (
	offSignature        = 3
	offVistaFirstOffset = 0xB0
	offV2Marker         = 11
	offV2Triplet        = 27
	markerSize          = 16
)

// sevenMarker and toGoMarker are the two fixed marker GUIDs that
// distinguish a regular Windows 7+ FVE volume from a BitLocker To Go
// volume; both otherwise share the same v2 boot sector encoding.
var (
	sevenMarker = uuid.MustParse("4967d63b-2e29-4ad8-8399-f6a339e3d001")
	toGoMarker  = uuid.MustParse("5771d63b-2e29-4ad8-8399-f6a339e3d001")
)

// Probe inspects a 512-byte boot sector and identifies its layout.
func Probe(bootSector []byte) (*Result, error) {
	const op = "discovery.Probe"
	if len(bootSector) < bootSectorSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("boot sector too short: %d bytes", len(bootSector)))
	}
	if !bytestream.HasSignature(bootSector[offSignature:]) {
		return nil, bdeerr.New(op, bdeerr.KindBadSignature, fmt.Errorf("no FVE signature at offset %d", offSignature))
	}

	marker, err := bytestream.GUID(bootSector, offV2Marker)
	if err == nil {
		switch marker {
		case sevenMarker:
			return probeV2(bootSector, LayoutSeven)
		case toGoMarker:
			return probeV2(bootSector, LayoutToGo)
		}
	}

	// Neither v2 marker matched: treat as the Vista layout, where only
	// the first offset is available up front.
	first, err := bytestream.Uint64(bootSector, offVistaFirstOffset)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	return &Result{
		Layout:     LayoutVista,
		Triplet:    [3]uint64{first, 0, 0},
		SectorSize: 512,
	}, nil
}

func probeV2(bootSector []byte, layout LayoutVersion) (*Result, error) {
	const op = "discovery.probeV2"
	first, err := bytestream.Uint64(bootSector, offV2Triplet)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	second, err := bytestream.Uint64(bootSector, offV2Triplet+8)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	third, err := bytestream.Uint64(bootSector, offV2Triplet+16)
	if err != nil {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, err)
	}
	return &Result{
		Layout:     layout,
		Triplet:    [3]uint64{first, second, third},
		SectorSize: 512,
	}, nil
}

// EncodeBootSector builds a synthetic boot sector for the given
// result, used by discovery's own round-trip tests and by fixtures in
// other packages.
func EncodeBootSector(r *Result) []byte {
	b := make([]byte, bootSectorSize)
	copy(b[offSignature:], bytestream.Signature[:])
	switch r.Layout {
	case LayoutVista:
		putUint64(b, offVistaFirstOffset, r.Triplet[0])
	case LayoutSeven, LayoutToGo:
		marker := sevenMarker
		if r.Layout == LayoutToGo {
			marker = toGoMarker
		}
		bytestream.PutGUID(b, offV2Marker, marker)
		putUint64(b, offV2Triplet, r.Triplet[0])
		putUint64(b, offV2Triplet+8, r.Triplet[1])
		putUint64(b, offV2Triplet+16, r.Triplet[2])
	}
	return b
}

func putUint64(b []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = byte(v >> (8 * i))
	}
}
