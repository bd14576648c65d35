package protector

import (
	"fmt"

	"github.com/jbmetz/go-bde/internal/bdeerr"
	"github.com/jbmetz/go-bde/internal/fvemeta"
)

// BlockSource reads one fixed-size metadata block at an absolute volume
// offset. It is satisfied by the volumeio backing reader.
type BlockSource interface {
	ReadBlock(offset uint64) ([]byte, error)
}

// ReplicaPolicy controls how ReadReplicas resolves the metadata
// triplet into a single authoritative MetadataSet.
type ReplicaPolicy int

const (
	// PolicyFirstValid returns the first replica (in triplet order)
	// that parses and decodes cleanly, ignoring the other two.
	PolicyFirstValid ReplicaPolicy = iota
	// PolicyStrict requires every present replica to parse and to
	// agree on volume identifier and encryption method before any is
	// trusted; a single corrupt or disagreeing replica fails the read.
	PolicyStrict
)

// ReadReplicas loads the metadata triplet from src and resolves it to
// one MetadataSet according to policy.
func ReadReplicas(src BlockSource, triplet [3]uint64, policy ReplicaPolicy) (*MetadataSet, error) {
	const op = "protector.ReadReplicas"

	switch policy {
	case PolicyFirstValid:
		var lastErr error
		for _, off := range triplet {
			if off == 0 {
				continue
			}
			set, err := readOneBlock(src, off)
			if err != nil {
				lastErr = err
				continue
			}
			return set, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("no usable metadata replica in triplet %v", triplet)
		}
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, lastErr)

	case PolicyStrict:
		var sets []*MetadataSet
		for _, off := range triplet {
			if off == 0 {
				continue
			}
			set, err := readOneBlock(src, off)
			if err != nil {
				return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("replica at offset %d: %w", off, err))
			}
			sets = append(sets, set)
		}
		if len(sets) == 0 {
			return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("no metadata replicas present in triplet %v", triplet))
		}
		first := sets[0]
		for _, s := range sets[1:] {
			if s.Header.VolumeIdentifier != first.Header.VolumeIdentifier {
				return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata replicas disagree on volume identifier"))
			}
			if s.Header.EncryptionMethod != first.Header.EncryptionMethod {
				return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata replicas disagree on encryption method"))
			}
		}
		return first, nil

	default:
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("unknown replica policy %d", policy))
	}
}

func readOneBlock(src BlockSource, offset uint64) (*MetadataSet, error) {
	raw, err := src.ReadBlock(offset)
	if err != nil {
		return nil, err
	}
	return ParseBlock(raw)
}

// ParseBlock decodes one raw 4096-byte FVE metadata block: block
// header, metadata header, and the TLV entry stream, projected into a
// MetadataSet.
func ParseBlock(raw []byte) (*MetadataSet, error) {
	const op = "protector.ParseBlock"
	if len(raw) < fvemeta.BlockSize {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata block too short: %d bytes", len(raw)))
	}

	blockHeader, err := fvemeta.ParseBlockHeader(raw[:fvemeta.BlockHeaderSize])
	if err != nil {
		return nil, err
	}

	metaStart := fvemeta.BlockHeaderSize
	header, err := fvemeta.ParseMetadataHeader(raw[metaStart : metaStart+fvemeta.MetadataHeaderSize])
	if err != nil {
		return nil, err
	}

	entriesStart := metaStart + fvemeta.MetadataHeaderSize
	entriesEnd := metaStart + int(header.MetadataSize)
	if entriesEnd > len(raw) || entriesEnd < entriesStart {
		return nil, bdeerr.New(op, bdeerr.KindCorrupt, fmt.Errorf("metadata entries span out of bounds"))
	}
	entries, err := fvemeta.DecodeEntries(raw[entriesStart:entriesEnd])
	if err != nil {
		return nil, err
	}

	set, err := Build(header, entries)
	if err != nil {
		return nil, err
	}
	set.Block = *blockHeader
	return set, nil
}
