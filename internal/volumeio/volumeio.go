// Package volumeio implements the read-only plaintext volume facade
// (spec §4.8): Read(offset, len) over the decrypted address space, with
// volume-header relocation (spec §4.7's "Volume-header relocation")
// stitched in transparently, and the two backing-reader disciplines
// from spec §5 (Exclusive: serialize every physical read behind a
// mutex; Positional: trust the reader's own pread-style concurrency).
package volumeio

import (
	"fmt"
	"io"
	"sync"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/sectorcipher"
)

// BackingReader is the consumed interface (spec §6): a positional
// reader over the raw, still-encrypted volume bytes.
type BackingReader interface {
	io.ReaderAt
}

// Discipline selects how concurrent reads against the backing reader
// are serialized.
type Discipline int

const (
	// Positional trusts the backing reader to support concurrent
	// positional reads (the io.ReaderAt contract) without external
	// locking -- the default for an *os.File or the blockdev pread
	// wrapper.
	Positional Discipline = iota
	// Exclusive serializes every physical read behind a mutex, for
	// backing readers that are not safe for concurrent use (e.g. a
	// single shared file descriptor with an implicit seek cursor).
	Exclusive
)

// Relocation describes where the first sectors of the logical volume
// are physically stored when the regular on-disk location carries the
// FVE signature instead (v2 volumes only).
type Relocation struct {
	Active bool
	Offset uint64 // physical byte offset of the relocated header block
	Size   uint64 // byte length of the relocated region
}

// Volume is the unlocked, read-only plaintext address space over an
// FVE-encrypted backing device.
type Volume struct {
	raw    *RawReader
	mu     sync.RWMutex // guards closed
	closed bool

	wg sync.WaitGroup // outstanding Read calls; Close waits on this

	engine     *sectorcipher.Engine
	volumeSize uint64
	relocation Relocation
}

// New builds a Volume ready to serve decrypted reads. engine must
// already hold the unwrapped FVEK (and tweak key, for XTS volumes);
// volumeio has no notion of credentials. raw is typically the same
// RawReader used to read the metadata triplet before unlock.
func New(raw *RawReader, engine *sectorcipher.Engine, volumeSize uint64, relocation Relocation) *Volume {
	return &Volume{
		raw:        raw,
		engine:     engine,
		volumeSize: volumeSize,
		relocation: relocation,
	}
}

// Size returns the logical (decrypted) volume size in bytes.
func (v *Volume) Size() uint64 { return v.volumeSize }

// Close marks the volume locked for further reads and waits for any
// in-flight reads to finish (spec §5: "close waits for in-flight
// reads"). Secret key material is owned by the caller (pkg/bde), not by
// Volume, and is zeroized there.
func (v *Volume) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	v.wg.Wait()
	return nil
}

// Read returns the decrypted bytes in [offset, offset+n), truncated at
// the end of the volume. A read entirely at or past the end of the
// volume returns an empty slice, not an error.
func (v *Volume) Read(offset uint64, n int) ([]byte, error) {
	const op = "volumeio.Read"

	v.mu.RLock()
	if v.closed {
		v.mu.RUnlock()
		return nil, bdeerr.New(op, bdeerr.KindLocked, fmt.Errorf("volume is closed"))
	}
	v.wg.Add(1)
	v.mu.RUnlock()
	defer v.wg.Done()

	if n <= 0 || offset >= v.volumeSize {
		return []byte{}, nil
	}
	end := offset + uint64(n)
	if end > v.volumeSize {
		end = v.volumeSize
	}

	sectorSize := uint64(v.engine.SectorSize())
	firstSector := offset / sectorSize
	lastSector := (end - 1) / sectorSize

	out := make([]byte, 0, end-offset)
	for sector := firstSector; sector <= lastSector; sector++ {
		sectorOffset := sector * sectorSize
		plain, err := v.readSector(sectorOffset)
		if err != nil {
			return nil, err
		}

		sliceStart := uint64(0)
		if sectorOffset < offset {
			sliceStart = offset - sectorOffset
		}
		sliceEnd := sectorSize
		if sectorOffset+sectorSize > end {
			sliceEnd = end - sectorOffset
		}
		out = append(out, plain[sliceStart:sliceEnd]...)
	}
	return out, nil
}

// readSector decrypts the one sector whose logical (decrypted) byte
// offset is logicalOffset, transparently redirecting to the relocated
// physical location when logicalOffset falls inside the volume-header
// block.
func (v *Volume) readSector(logicalOffset uint64) ([]byte, error) {
	const op = "volumeio.readSector"

	physicalOffset := logicalOffset
	if v.relocation.Active && logicalOffset < v.relocation.Size {
		physicalOffset = v.relocation.Offset + logicalOffset
	}

	sectorSize := v.engine.SectorSize()
	raw := make([]byte, sectorSize)
	if err := v.raw.ReadAt(raw, physicalOffset); err != nil {
		return nil, bdeerr.New(op, bdeerr.KindIO, err)
	}

	return v.engine.DecryptSector(logicalOffset, raw)
}
