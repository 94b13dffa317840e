package tcp

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/JobsHwang/LinkIOT/internal/errs"
	"github.com/JobsHwang/LinkIOT/rpc/message"
)

// lengthBytes is the head length plus body length prefix of every frame
const lengthBytes = 8

// ReadMsg reads one complete request or response frame.
func ReadMsg(conn net.Conn) ([]byte, error) {
	lenBs := make([]byte, lengthBytes)
	_, err := io.ReadFull(conn, lenBs)
	if err == io.ErrUnexpectedEOF {
		return nil, errs.ReadLenDataError
	}
	if err != nil {
		// io.EOF and deadline errors are reported as they are
		return nil, err
	}
	headLength := binary.BigEndian.Uint32(lenBs[:4])
	bodyLength := binary.BigEndian.Uint32(lenBs[4:])
	// a head shorter than its fixed part cannot be decoded
	if headLength < message.FixedHeadLength {
		return nil, errs.InvalidFrameError
	}
	bs := make([]byte, headLength+bodyLength)
	copy(bs, lenBs)
	_, err = io.ReadFull(conn, bs[lengthBytes:])
	return bs, err
}
