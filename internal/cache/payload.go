package cache

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/bitdb/internal/bitmap"
	"github.com/hupe1980/bitdb/internal/conv"
	"github.com/hupe1980/bitdb/internal/formula"
)

// ErrCorruptPayload is returned when a persisted payload cannot be decoded.
var ErrCorruptPayload = errors.New("corrupt cache payload")

const (
	payloadMagic   = "BDBP"
	payloadVersion = 1
	// magic, version, record hash, id hash, cost, dependency count
	payloadHeaderSize = 4 + 1 + 8 + 8 + 8 + 4
	checksumSize      = 8
)

// Payload is the computed result of a formula subtree together with what is
// needed to validate and reuse it.
type Payload struct {
	RecordHash          uint64
	TransactionalIDHash uint64
	// Dependencies holds the source versions the bitmap was computed from.
	Dependencies []formula.Dependency
	Cost         int64
	Bitmap       *bitmap.Bitmap
}

// NewPayload captures the computed result of f.
func NewPayload(f *formula.Formula) *Payload {
	return &Payload{
		RecordHash:          f.Hash(),
		TransactionalIDHash: f.TransactionalIDHash(),
		Dependencies:        f.Dependencies(),
		Cost:                f.Cost(),
		Bitmap:              f.Compute(),
	}
}

// Key returns the cache key of the payload.
func (p *Payload) Key() Key {
	return Key{RecordHash: p.RecordHash, TransactionalIDHash: p.TransactionalIDHash}
}

// Formula returns a flattened surrogate serving the payload.
func (p *Payload) Formula() *formula.Formula {
	return formula.Flattened(p.Bitmap, formula.Recorded{
		Hash:         p.RecordHash,
		Dependencies: p.Dependencies,
		Cost:         p.Cost,
	})
}

// size approximates the memory held by the payload.
func (p *Payload) size() int64 {
	return int64(payloadHeaderSize + 16*len(p.Dependencies) + p.Bitmap.SizeInBytes())
}

// MarshalPayload encodes p, compressing the bitmap with c. The encoding is
// guarded by a checksum.
func MarshalPayload(p *Payload, c Compression) ([]byte, error) {
	raw, err := p.Bitmap.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal bitmap: %w", err)
	}
	block, err := compressBlock(raw, c)
	if err != nil {
		return nil, fmt.Errorf("compress bitmap: %w", err)
	}

	deps, err := conv.ToUint32(len(p.Dependencies))
	if err != nil {
		return nil, err
	}

	out := make([]byte, payloadHeaderSize, payloadHeaderSize+16*len(p.Dependencies)+len(block)+checksumSize)
	copy(out, payloadMagic)
	out[4] = payloadVersion
	binary.LittleEndian.PutUint64(out[5:], p.RecordHash)
	binary.LittleEndian.PutUint64(out[13:], p.TransactionalIDHash)
	binary.LittleEndian.PutUint64(out[21:], uint64(p.Cost))
	binary.LittleEndian.PutUint32(out[29:], deps)
	for _, d := range p.Dependencies {
		out = binary.LittleEndian.AppendUint64(out, d.ID)
		out = binary.LittleEndian.AppendUint64(out, d.Version)
	}
	out = append(out, block...)
	return binary.LittleEndian.AppendUint64(out, xxhash.Sum64(out)), nil
}

// UnmarshalPayload decodes data produced by MarshalPayload. Any malformed
// input yields an error matching ErrCorruptPayload.
func UnmarshalPayload(data []byte) (*Payload, error) {
	if len(data) < payloadHeaderSize+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptPayload, len(data))
	}
	body := data[:len(data)-checksumSize]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(data[len(body):]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptPayload)
	}
	if string(body[:4]) != payloadMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptPayload)
	}
	if body[4] != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptPayload, body[4])
	}

	p := &Payload{
		RecordHash:          binary.LittleEndian.Uint64(body[5:]),
		TransactionalIDHash: binary.LittleEndian.Uint64(body[13:]),
		Cost:                int64(binary.LittleEndian.Uint64(body[21:])),
	}
	n := binary.LittleEndian.Uint32(body[29:])
	rest := body[payloadHeaderSize:]
	if uint64(len(rest)) < 16*uint64(n) {
		return nil, fmt.Errorf("%w: dependencies truncated", ErrCorruptPayload)
	}
	if n > 0 {
		p.Dependencies = make([]formula.Dependency, n)
		for i := range p.Dependencies {
			p.Dependencies[i] = formula.Dependency{
				ID:      binary.LittleEndian.Uint64(rest[16*i:]),
				Version: binary.LittleEndian.Uint64(rest[16*i+8:]),
			}
		}
	}
	rest = rest[16*n:]

	raw, consumed, err := decompressBlock(rest)
	if err != nil {
		return nil, err
	}
	if consumed != len(rest) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptPayload, len(rest)-consumed)
	}
	b := bitmap.New()
	if err := b.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	p.Bitmap = b
	return p, nil
}
