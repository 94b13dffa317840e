package gzip

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/JobsHwang/LinkIOT/rpc/compress"
)

var _ compress.Compressor = Compressor{}

// Compressor implements the Compressor interface
type Compressor struct{}

func (Compressor) Code() byte {
	return 1
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	res := bytes.NewBuffer(nil)
	w := gzip.NewWriter(res)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	// Close flushes the footer, it cannot be deferred
	if err := w.Close(); err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	return io.ReadAll(r)
}
