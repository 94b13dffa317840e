package json

import (
	"bytes"
	"encoding/json"

	"github.com/JobsHwang/LinkIOT/rpc/serialize"
)

// Serializer -> JSON serialization protocol.
// Numbers decoded into interface values stay json.Number so integers keep
// their precision across the wire.
type Serializer struct{}

func (s Serializer) Code() byte {
	return serialize.CodeJSON
}

func (s Serializer) Encode(val any) ([]byte, error) {
	return json.Marshal(val)
}

func (s Serializer) Decode(data []byte, val any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	return decoder.Decode(val)
}
