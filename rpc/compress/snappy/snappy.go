package snappy

import (
	"bytes"
	"io"

	"github.com/JobsHwang/LinkIOT/rpc/compress"
	"github.com/golang/snappy"
)

var _ compress.Compressor = Compressor{}

// Compressor implements the Compressor interface with the snappy framing format
type Compressor struct{}

func (Compressor) Code() byte {
	return 3
}

// Compress data
func (Compressor) Compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w := snappy.NewBufferedWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Uncompress data
func (Compressor) Uncompress(data []byte) ([]byte, error) {
	res, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return res, nil
}
