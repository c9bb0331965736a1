package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

var magic = []byte("SQFX")

const formatVersion uint16 = 1

// MarshalBinary encodes the index as:
//
//	magic "SQFX", version(uint16), dim(uint32), n(uint32), then per entry
//	keyLen(uint32) key, metaCount(uint32) [kLen k vLen v]..., vec(float32[dim])
//
// followed by a blake2b-256 checksum of everything before it. Little-endian.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	size := len(magic) + 2 + 8
	for _, e := range f.entries {
		size += 8 + len(e.Key) + 4*f.dim
		for k, v := range e.Metadata {
			size += 8 + len(k) + len(v)
		}
	}

	out := make([]byte, 0, size+blake2b.Size256)
	out = append(out, magic...)
	out = binary.LittleEndian.AppendUint16(out, formatVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(f.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(f.entries)))

	putString := func(s string) {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(s)))
		out = append(out, s...)
	}

	for _, e := range f.entries {
		putString(e.Key)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Metadata)))
		for _, k := range sortedKeys(e.Metadata) {
			putString(k)
			putString(e.Metadata[k])
		}
		for _, x := range e.Vector {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		}
	}

	sum := blake2b.Sum256(out)
	return append(out, sum[:]...), nil
}

// UnmarshalBinary replaces the index contents with the decoded blob.
func (f *FlatIndex) UnmarshalBinary(data []byte) error {
	decoded, err := decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorruptArtifact, err)
	}
	*f = *decoded
	return nil
}

var errTruncated = errors.New("truncated index blob")

type reader struct {
	data []byte
	off  int
}

func (r *reader) u32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.off+int(n) > len(r.data) {
		return "", errTruncated
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

func decode(data []byte) (*FlatIndex, error) {
	header := len(magic) + 2 + 8
	if len(data) < header+blake2b.Size256 {
		return nil, errTruncated
	}

	body, trailer := data[:len(data)-blake2b.Size256], data[len(data)-blake2b.Size256:]
	sum := blake2b.Sum256(body)
	if !bytes.Equal(sum[:], trailer) {
		return nil, errors.New("checksum mismatch")
	}
	if !bytes.Equal(body[:len(magic)], magic) {
		return nil, errors.New("bad magic")
	}
	if v := binary.LittleEndian.Uint16(body[len(magic):]); v != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", v)
	}

	r := &reader{data: body, off: len(magic) + 2}
	dim, _ := r.u32()
	n, _ := r.u32()

	// Counts come from the blob; capacity is bounded by the bytes left so a
	// forged count fails as truncated instead of exhausting memory.
	entries := make([]driven.IndexEntry, 0, min(int(n), r.remaining()/(8+4*int(dim))))
	for i := uint32(0); i < n; i++ {
		key, err := r.str()
		if err != nil {
			return nil, err
		}
		metaCount, err := r.u32()
		if err != nil {
			return nil, err
		}
		meta := make(map[string]string, min(int(metaCount), r.remaining()/8))
		for j := uint32(0); j < metaCount; j++ {
			k, err := r.str()
			if err != nil {
				return nil, err
			}
			v, err := r.str()
			if err != nil {
				return nil, err
			}
			meta[k] = v
		}
		if r.off+4*int(dim) > len(body) {
			return nil, errTruncated
		}
		vec := make([]float32, dim)
		for j := range vec {
			bits, _ := r.u32()
			vec[j] = math.Float32frombits(bits)
		}
		entries = append(entries, driven.IndexEntry{Key: key, Metadata: meta, Vector: vec})
	}
	if r.off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes", len(body)-r.off)
	}

	return &FlatIndex{dim: int(dim), entries: entries}, nil
}
