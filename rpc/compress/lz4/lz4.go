package lz4

import (
	"errors"

	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/pierrec/lz4/v4"
)

var _ compress.Compressor = Compressor{}

const maxBlockSize = 64 << 20

const (
	blockRaw byte = iota
	blockCompressed
)

// Compressor lz4 block compression. Decompression is several times faster
// than gzip, which suits small, frequent bus messages.
// The first byte marks whether the block is compressed: lz4 gives up on
// incompressible input.
type Compressor struct{}

func (Compressor) Code() byte {
	return 2
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	var c lz4.Compressor
	buf := make([]byte, 1+lz4.CompressBlockBound(len(data)))
	n, err := c.CompressBlock(data, buf[1:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		buf = append(buf[:1], data...)
		buf[0] = blockRaw
		return buf, nil
	}
	buf[0] = blockCompressed
	return buf[:n+1], nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	if data[0] == blockRaw {
		return data[1:], nil
	}
	size := 4 * len(data)
	for {
		buf := make([]byte, size)
		n, err := lz4.UncompressBlock(data[1:], buf)
		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) && size < maxBlockSize {
			size *= 2
			continue
		}
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	}
}
