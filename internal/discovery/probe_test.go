package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeVistaLayoutRoundTrip(t *testing.T) {
	want := &Result{
		Layout:     LayoutVista,
		Triplet:    [3]uint64{0x4000, 0, 0},
		SectorSize: 512,
	}
	got, err := Probe(EncodeBootSector(want))
	require.NoError(t, err)
	assert.Equal(t, want.Layout, got.Layout)
	assert.Equal(t, want.Triplet[0], got.Triplet[0])
}

func TestProbeSevenLayoutRoundTrip(t *testing.T) {
	want := &Result{
		Layout:     LayoutSeven,
		Triplet:    [3]uint64{0x4000, 0x800000, 0x1000000},
		SectorSize: 512,
	}
	got, err := Probe(EncodeBootSector(want))
	require.NoError(t, err)
	assert.Equal(t, want.Layout, got.Layout)
	assert.Equal(t, want.Triplet, got.Triplet)
}

func TestProbeToGoLayoutRoundTrip(t *testing.T) {
	want := &Result{
		Layout:     LayoutToGo,
		Triplet:    [3]uint64{0x1000, 0x20000, 0x40000},
		SectorSize: 512,
	}
	got, err := Probe(EncodeBootSector(want))
	require.NoError(t, err)
	assert.Equal(t, want.Layout, got.Layout)
	assert.Equal(t, want.Triplet, got.Triplet)
}

func TestProbeTooShort(t *testing.T) {
	_, err := Probe(make([]byte, 100))
	assert.Error(t, err)
}

func TestProbeMissingSignature(t *testing.T) {
	b := make([]byte, 512)
	_, err := Probe(b)
	assert.Error(t, err)
}
