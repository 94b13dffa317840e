package compress_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/JobsHwang/LinkIOT/rpc/compress/gzip"
	"github.com/JobsHwang/LinkIOT/rpc/compress/lz4"
	"github.com/JobsHwang/LinkIOT/rpc/compress/snappy"
	"github.com/JobsHwang/LinkIOT/rpc/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor(t *testing.T) {
	compressors := []compress.Compressor{
		compress.DoNothingCompressor{},
		gzip.Compressor{},
		lz4.Compressor{},
		snappy.Compressor{},
		zlib.Compressor{},
	}
	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "json body",
			data: []byte(`{"device":null,"sensorId":7,"data":{"temp":21}}`),
		},
		{
			name: "repetitive",
			data: bytes.Repeat([]byte("sensor-reading;"), 4096),
		},
		{
			name: "single byte",
			data: []byte{0x7f},
		},
	}
	for _, c := range compressors {
		for _, tc := range testCases {
			t.Run(fmt.Sprintf("%d/%s", c.Code(), tc.name), func(t *testing.T) {
				compressed, err := c.Compress(tc.data)
				require.NoError(t, err)
				res, err := c.Uncompress(compressed)
				require.NoError(t, err)
				assert.Equal(t, tc.data, res)
			})
		}
	}
}

func TestCompressor_Code(t *testing.T) {
	codes := map[byte]bool{}
	for _, c := range []compress.Compressor{
		compress.DoNothingCompressor{}, gzip.Compressor{}, lz4.Compressor{},
		snappy.Compressor{}, zlib.Compressor{},
	} {
		assert.False(t, codes[c.Code()], "duplicated code %d", c.Code())
		codes[c.Code()] = true
	}
}
