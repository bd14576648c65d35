package volumeio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jbmetz/go-bde/internal/bdeerr"
)

// RawReader wraps the backing device for the pre-unlock phase:
// discovery's boot-sector probe and the metadata block reader both need
// plain positional reads with no notion of sectors, ciphers, or
// relocation. Volume embeds one of these for its own physical reads
// once unlocked, so the locking discipline is defined exactly once.
type RawReader struct {
	reader     BackingReader
	discipline Discipline
	mu         sync.Mutex
}

// NewRawReader wraps reader under the given concurrency discipline.
func NewRawReader(reader BackingReader, discipline Discipline) *RawReader {
	return &RawReader{reader: reader, discipline: discipline}
}

// ReadAt reads len(buf) bytes at the given physical offset, short reads
// at EOF are zero-padded the way a truncated disk image would be.
func (r *RawReader) ReadAt(buf []byte, offset uint64) error {
	if offset > 1<<62 {
		return fmt.Errorf("volumeio: offset %d overflows int64", offset)
	}
	if r.discipline == Exclusive {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	_, err := r.reader.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ReadBootSector reads the first 512 bytes of the volume, for
// discovery.Probe.
func (r *RawReader) ReadBootSector() ([]byte, error) {
	buf := make([]byte, 512)
	if err := r.ReadAt(buf, 0); err != nil {
		return nil, bdeerr.New("volumeio.ReadBootSector", bdeerr.KindIO, err)
	}
	return buf, nil
}

// ReadBlock implements protector.BlockSource: reads one fixed
// 4096-byte FVE metadata block at an absolute physical volume offset.
func (r *RawReader) ReadBlock(offset uint64) ([]byte, error) {
	buf := make([]byte, 4096)
	if err := r.ReadAt(buf, offset); err != nil {
		return nil, bdeerr.New("volumeio.ReadBlock", bdeerr.KindIO, err)
	}
	return buf, nil
}
