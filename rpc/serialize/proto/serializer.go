package proto

import (
	"github.com/JobsHwang/LinkIOT/internal/errs"
	"github.com/JobsHwang/LinkIOT/rpc/serialize"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Serializer -> Protobuf serialization protocol.
// Plain Go values (maps, slices, scalars) travel as a structpb.Value.
type Serializer struct{}

func (s Serializer) Code() byte {
	return serialize.CodeProto
}

func (s Serializer) Encode(val any) ([]byte, error) {
	if msg, ok := val.(proto.Message); ok {
		return proto.Marshal(msg)
	}
	value, err := structpb.NewValue(val)
	if err != nil {
		return nil, errs.ProtoSerializeTypError
	}
	return proto.Marshal(value)
}

func (s Serializer) Decode(data []byte, val any) error {
	switch v := val.(type) {
	case proto.Message:
		return proto.Unmarshal(data, v)
	case *any:
		value := &structpb.Value{}
		if err := proto.Unmarshal(data, value); err != nil {
			return err
		}
		*v = value.AsInterface()
		return nil
	default:
		return errs.ProtoDeserializeTypError
	}
}
