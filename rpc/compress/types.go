package compress

// Compressor -> body compression algorithm, identified on the wire by Code
type Compressor interface {
	Code() byte
	Compress(data []byte) ([]byte, error)
	Uncompress(data []byte) ([]byte, error)
}

// DoNothingCompressor avoids nil checks when no compression is configured
type DoNothingCompressor struct{}

func (DoNothingCompressor) Code() byte {
	return 0
}

func (DoNothingCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (DoNothingCompressor) Uncompress(data []byte) ([]byte, error) {
	return data, nil
}
