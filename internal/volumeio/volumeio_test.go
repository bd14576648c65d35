package volumeio

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbmetz/go-bde/internal/fvemeta"
	"github.com/jbmetz/go-bde/internal/sectorcipher"
)

const testSectorSize = 512

// buildCipherImage encrypts numSectors of deterministic plaintext under
// engine, each sector tagged with its own logical offset, and returns
// the resulting ciphertext bytes ready to back a Volume.
func buildCipherImage(t *testing.T, engine *sectorcipher.Engine, numSectors int) (cipherImage []byte, plaintext []byte) {
	t.Helper()
	for s := 0; s < numSectors; s++ {
		sector := make([]byte, testSectorSize)
		for i := range sector {
			sector[i] = byte(s*7 + i)
		}
		plaintext = append(plaintext, sector...)
		ct, err := engine.EncryptSector(uint64(s*testSectorSize), sector)
		require.NoError(t, err)
		cipherImage = append(cipherImage, ct...)
	}
	return cipherImage, plaintext
}

func newTestEngine(t *testing.T) *sectorcipher.Engine {
	t.Helper()
	engine, err := sectorcipher.New(fvemeta.EncryptionMethodAESCBC128, testSectorSize, make([]byte, 16), nil)
	require.NoError(t, err)
	return engine
}

func TestVolumeReadWholeVolume(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 4)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	defer vol.Close()

	got, err := vol.Read(0, len(plaintext))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestVolumeReadMidSectorSpan(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 4)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	defer vol.Close()

	got, err := vol.Read(300, 600) // spans sectors 0 and 1 partially
	require.NoError(t, err)
	assert.Equal(t, plaintext[300:900], got)
}

func TestVolumeReadPastEndIsEmpty(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 2)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	defer vol.Close()

	got, err := vol.Read(uint64(len(plaintext)), 100)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVolumeReadTruncatedAtEnd(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 2)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	defer vol.Close()

	got, err := vol.Read(uint64(len(plaintext))-10, 100)
	require.NoError(t, err)
	assert.Equal(t, plaintext[len(plaintext)-10:], got)
}

func TestVolumeReadZeroLength(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 1)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	defer vol.Close()

	got, err := vol.Read(0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVolumeReadAfterCloseFails(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 1)

	raw := NewRawReader(bytes.NewReader(cipherImage), Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})
	require.NoError(t, vol.Close())

	_, err := vol.Read(0, 10)
	assert.Error(t, err)
}

func TestVolumeCloseWaitsForInFlightReads(t *testing.T) {
	engine := newTestEngine(t)
	cipherImage, plaintext := buildCipherImage(t, engine, 1)

	raw := NewRawReader(&slowReaderAt{inner: bytes.NewReader(cipherImage), delay: 30 * time.Millisecond}, Positional)
	vol := New(raw, engine, uint64(len(plaintext)), Relocation{})

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		_, _ = vol.Read(0, testSectorSize)
	}()
	<-started
	time.Sleep(5 * time.Millisecond) // let the read begin before Close

	closeDone := make(chan struct{})
	go func() {
		vol.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatal("Close returned before the in-flight read finished")
	case <-time.After(10 * time.Millisecond):
	}
	wg.Wait()
	<-closeDone
}

// slowReaderAt inserts a fixed delay before delegating to inner, used to
// widen the race window in TestVolumeCloseWaitsForInFlightReads.
type slowReaderAt struct {
	inner *bytes.Reader
	delay time.Duration
}

func (s *slowReaderAt) ReadAt(p []byte, off int64) (int, error) {
	time.Sleep(s.delay)
	return s.inner.ReadAt(p, off)
}

func TestVolumeRelocationRedirectsHeaderSectors(t *testing.T) {
	engine := newTestEngine(t)

	// Build the "real" logical plaintext for sectors 0 and 1.
	logical0 := make([]byte, testSectorSize)
	logical1 := make([]byte, testSectorSize)
	for i := range logical0 {
		logical0[i] = byte(i)
		logical1[i] = byte(255 - i)
	}

	// The on-disk sector 0 carries the FVE signature instead, and the
	// true logical sector 0 plaintext is relocated to physical offset
	// 4096, still encrypted under its logical offset (0) as the
	// IV/tweak seed.
	signatureSector := make([]byte, testSectorSize)
	copy(signatureSector, []byte("-FVE-FS-"))
	relocated0, err := engine.EncryptSector(0, logical0)
	require.NoError(t, err)
	sector1, err := engine.EncryptSector(testSectorSize, logical1)
	require.NoError(t, err)

	image := make([]byte, 4096+testSectorSize)
	copy(image[0:testSectorSize], signatureSector)
	copy(image[testSectorSize:], sector1)
	copy(image[4096:], relocated0)

	raw := NewRawReader(bytes.NewReader(image), Positional)
	vol := New(raw, engine, uint64(2*testSectorSize), Relocation{Active: true, Offset: 4096, Size: testSectorSize})
	defer vol.Close()

	got, err := vol.Read(0, 2*testSectorSize)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, logical0...), logical1...), got)
}
