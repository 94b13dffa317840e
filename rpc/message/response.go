package message

import (
	"bytes"
	"encoding/binary"

	"github.com/JobsHwang/LinkIOT/internal/errs"
)

// Response -> one bus reply on the wire
type Response struct {
	// 响应头长度
	HeadLength uint32
	// 响应体长度
	BodyLength uint32
	// 消息ID
	MessageId uint32
	// 协议版本
	Version uint8
	// 压缩算法
	Compresser uint8
	// 序列化协议
	Serializer uint8
	// name of the message codec used for Error or Data, empty for defaults
	Codec string
	// encoded failure; empty on success
	Error []byte
	// 协议 响应体 / 响应数据
	Data []byte
}

func EncodeResp(resp *Response) []byte {
	bs := make([]byte, resp.HeadLength+resp.BodyLength)
	binary.BigEndian.PutUint32(bs[:4], resp.HeadLength)
	binary.BigEndian.PutUint32(bs[4:8], resp.BodyLength)
	binary.BigEndian.PutUint32(bs[8:12], resp.MessageId)
	bs[12] = resp.Version
	bs[13] = resp.Compresser
	bs[14] = resp.Serializer

	cur := bs[FixedHeadLength:]
	copy(cur, resp.Codec)
	cur = cur[len(resp.Codec):]
	cur[0] = splitter
	cur = cur[1:]
	// the rest of the head is the error
	copy(cur, resp.Error)
	cur = cur[len(resp.Error):]

	copy(cur, resp.Data)
	return bs
}

func DecodeResp(bs []byte) (*Response, error) {
	if len(bs) < FixedHeadLength {
		return nil, errs.InvalidFrameError
	}
	resp := &Response{}
	resp.HeadLength = binary.BigEndian.Uint32(bs[:4])
	resp.BodyLength = binary.BigEndian.Uint32(bs[4:8])
	resp.MessageId = binary.BigEndian.Uint32(bs[8:12])
	resp.Version = bs[12]
	resp.Compresser = bs[13]
	resp.Serializer = bs[14]
	if err := checkLength(bs, resp.HeadLength, resp.BodyLength); err != nil {
		return nil, err
	}

	header := bs[FixedHeadLength:resp.HeadLength]
	index := bytes.IndexByte(header, splitter)
	if index == -1 {
		return nil, errs.InvalidFrameError
	}
	resp.Codec = string(header[:index])
	if errData := header[index+1:]; len(errData) > 0 {
		resp.Error = errData
	}
	if resp.BodyLength != 0 {
		resp.Data = bs[resp.HeadLength : resp.HeadLength+resp.BodyLength]
	}
	return resp, nil
}

func (resp *Response) CalculateHeaderLength() {
	resp.HeadLength = FixedHeadLength + uint32(len(resp.Codec)) + 1 + uint32(len(resp.Error))
}

func (resp *Response) CalculateBodyLength() {
	resp.BodyLength = uint32(len(resp.Data))
}
