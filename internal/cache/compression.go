package cache

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/bitdb/internal/conv"
)

// Compression selects the algorithm used for persisted payload bitmaps.
type Compression uint8

const (
	// CompressionNone stores the bitmap as is.
	CompressionNone Compression = 0
	// CompressionLZ4 favours speed and is the default.
	CompressionLZ4 Compression = 1
	// CompressionZSTD favours ratio.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block layout: [compression u8][uncompressed u32][stored u32][data...].
// A block whose data did not shrink is stored with CompressionNone.
const blockHeaderSize = 9

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var packed []byte
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		packed = buf[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown compression %s", c)
	}

	// Incompressible input: lz4 reports n == 0, zstd grows it.
	if len(packed) == 0 || len(packed) >= len(data) {
		c, packed = CompressionNone, data
	}

	size, err := conv.ToUint32(len(data))
	if err != nil {
		return nil, err
	}
	stored, err := conv.ToUint32(len(packed))
	if err != nil {
		return nil, err
	}

	out := make([]byte, blockHeaderSize+len(packed))
	out[0] = byte(c)
	binary.LittleEndian.PutUint32(out[1:], size)
	binary.LittleEndian.PutUint32(out[5:], stored)
	copy(out[blockHeaderSize:], packed)
	return out, nil
}

// decompressBlock returns the block payload and the number of bytes consumed.
func decompressBlock(data []byte) ([]byte, int, error) {
	if len(data) < blockHeaderSize {
		return nil, 0, fmt.Errorf("%w: block too small for header", ErrCorruptPayload)
	}
	c := Compression(data[0])
	size := binary.LittleEndian.Uint32(data[1:])
	stored := binary.LittleEndian.Uint32(data[5:])
	if uint64(len(data)) < blockHeaderSize+uint64(stored) {
		return nil, 0, fmt.Errorf("%w: block data truncated", ErrCorruptPayload)
	}
	packed := data[blockHeaderSize : blockHeaderSize+stored]
	consumed := blockHeaderSize + int(stored)

	switch c {
	case CompressionNone:
		if stored != size {
			return nil, 0, fmt.Errorf("%w: size mismatch", ErrCorruptPayload)
		}
		return packed, consumed, nil
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(packed, out)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		if uint32(n) != size {
			return nil, 0, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptPayload)
		}
		return out, consumed, nil
	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(packed, make([]byte, 0, size))
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
		}
		if uint32(len(out)) != size {
			return nil, 0, fmt.Errorf("%w: decompressed size mismatch", ErrCorruptPayload)
		}
		return out, consumed, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown compression %s", ErrCorruptPayload, c)
	}
}
