package errs

import (
	"errors"
	"fmt"
)

var (
	ReadLenDataError    = errors.New("rpc: could not read the length data")
	ReadRespFailError   = errors.New("rpc: unable to read response")
	ClientNotAllWritten = errors.New("rpc: request was not fully written")
	ServerClosedError   = errors.New("rpc: server closed")
	InvalidFrameError   = errors.New("rpc: invalid frame")
)

var (
	ProtoSerializeTypError   = errors.New("serialize: serialization must be proto Message Type")
	ProtoDeserializeTypError = errors.New("serialize: deserialization must be proto.Message type")
)

var (
	CompressorNotFoundError = errors.New("compress: compressor not found")
	SerializerNotFoundError = errors.New("serialize: serializer not found")
)

func ClientConnDeaded(err error) error {
	return fmt.Errorf("rpc: unable to get a connection: %w", err)
}

func CompressorNotFound(code byte) error {
	return fmt.Errorf("%w: %d", CompressorNotFoundError, code)
}

func SerializerNotFound(code byte) error {
	return fmt.Errorf("%w: %d", SerializerNotFoundError, code)
}
