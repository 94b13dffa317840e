package message

import (
	"bytes"
	"encoding/binary"

	"github.com/JobsHwang/LinkIOT/internal/errs"
)

const (
	splitter     = '\n'
	pairSplitter = '\r'
)

// FixedHeadLength covers head length, body length, message id, version,
// compressor and serializer.
const FixedHeadLength = 15

// Request -> one bus request on the wire
type Request struct {
	// 头部
	// 消息头长度
	HeadLength uint32
	// 消息体长度
	BodyLength uint32
	// 消息 ID
	MessageId uint32
	// 版本，一个字节
	Version uint8
	// 压缩算法
	Compresser uint8
	// 序列化协议
	Serializer uint8

	// destination address on the bus
	Address string
	// name of the message codec that encoded Data, empty for the serializer
	Codec string

	// delivery headers, e.g. the action
	Meta map[string]string

	// 协议 请求体 / 请求数据
	Data []byte
}

func EncodeReq(req *Request) []byte {
	bs := make([]byte, req.HeadLength+req.BodyLength)
	// 1. 写入 HeadLength，四个字节
	binary.BigEndian.PutUint32(bs[:4], req.HeadLength)
	// 2. 写入 BodyLength 四个字节
	binary.BigEndian.PutUint32(bs[4:8], req.BodyLength)
	// 3. 写入 message id, 四个字节
	binary.BigEndian.PutUint32(bs[8:12], req.MessageId)
	// 4. version, compressor and serializer are one byte each
	bs[12] = req.Version
	bs[13] = req.Compresser
	bs[14] = req.Serializer

	cur := bs[FixedHeadLength:]
	copy(cur, req.Address)
	cur = cur[len(req.Address):]
	cur[0] = splitter
	cur = cur[1:]
	copy(cur, req.Codec)
	cur = cur[len(req.Codec):]
	cur[0] = splitter
	cur = cur[1:]

	for key, value := range req.Meta {
		copy(cur, key)
		cur = cur[len(key):]
		cur[0] = pairSplitter
		cur = cur[1:]
		copy(cur, value)
		cur = cur[len(value):]
		cur[0] = splitter
		cur = cur[1:]
	}
	copy(cur, req.Data)
	return bs
}

// DecodeReq parses one frame. Frames that are truncated or miss a
// separator are rejected with errs.InvalidFrameError.
func DecodeReq(bs []byte) (*Request, error) {
	if len(bs) < FixedHeadLength {
		return nil, errs.InvalidFrameError
	}
	req := &Request{}
	req.HeadLength = binary.BigEndian.Uint32(bs[:4])
	req.BodyLength = binary.BigEndian.Uint32(bs[4:8])
	req.MessageId = binary.BigEndian.Uint32(bs[8:12])
	req.Version = bs[12]
	req.Compresser = bs[13]
	req.Serializer = bs[14]
	if err := checkLength(bs, req.HeadLength, req.BodyLength); err != nil {
		return nil, err
	}

	header := bs[FixedHeadLength:req.HeadLength]
	index := bytes.IndexByte(header, splitter)
	if index == -1 {
		return nil, errs.InvalidFrameError
	}
	req.Address = string(header[:index])
	// 加1 是为了跳掉分隔符
	header = header[index+1:]

	index = bytes.IndexByte(header, splitter)
	if index == -1 {
		return nil, errs.InvalidFrameError
	}
	req.Codec = string(header[:index])
	header = header[index+1:]

	index = bytes.IndexByte(header, splitter)
	if index != -1 {
		meta := make(map[string]string, 4)
		for index != -1 {
			// 一个键值对, 用 \r 切分 key-value
			pair := header[:index]
			pairIndex := bytes.IndexByte(pair, pairSplitter)
			if pairIndex == -1 {
				return nil, errs.InvalidFrameError
			}
			meta[string(pair[:pairIndex])] = string(pair[pairIndex+1:])
			header = header[index+1:]
			index = bytes.IndexByte(header, splitter)
		}
		req.Meta = meta
	}
	if req.BodyLength != 0 {
		req.Data = bs[req.HeadLength : req.HeadLength+req.BodyLength]
	}
	return req, nil
}

// checkLength makes sure the head and body announced by the frame fit in bs.
func checkLength(bs []byte, headLength, bodyLength uint32) error {
	if headLength < FixedHeadLength || uint64(headLength)+uint64(bodyLength) > uint64(len(bs)) {
		return errs.InvalidFrameError
	}
	return nil
}

func (req *Request) CalculateHeaderLength() {
	// 不要忘了分隔符
	headLength := FixedHeadLength + len(req.Address) + 1 + len(req.Codec) + 1
	for key, value := range req.Meta {
		// key, pair splitter, value, splitter
		headLength += len(key) + 1 + len(value) + 1
	}
	req.HeadLength = uint32(headLength)
}

func (req *Request) CalculateBodyLength() {
	req.BodyLength = uint32(len(req.Data))
}
