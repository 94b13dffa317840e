package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/JobsHwang/LinkIOT/rpc/serialize/json"
)

// MessageCodec turns a body into bytes when it leaves the process and copies
// it when it is delivered locally.
type MessageCodec interface {
	Name() string
	Encode(val any) ([]byte, error)
	Decode(data []byte) (any, error)
	// Transform returns the value handed to a local consumer.
	Transform(val any) any
}

// Codecs holds named codecs and the default codec of each registered type.
type Codecs struct {
	mutex    sync.RWMutex
	byName   map[string]MessageCodec
	defaults map[reflect.Type]MessageCodec
}

func NewCodecs() *Codecs {
	return &Codecs{
		byName:   map[string]MessageCodec{JSONCodecName: JSONCodec{}},
		defaults: make(map[reflect.Type]MessageCodec, 4),
	}
}

// Register adds a codec selectable by name through DeliveryOptions.CodecName.
func (c *Codecs) Register(codec MessageCodec) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.byName[codec.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrCodecAlreadyRegistered, codec.Name())
	}
	c.byName[codec.Name()] = codec
	return nil
}

// RegisterDefault makes codec the one used for every body of type typ.
func (c *Codecs) RegisterDefault(typ reflect.Type, codec MessageCodec) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, ok := c.defaults[typ]; ok {
		return fmt.Errorf("%w: %s", ErrCodecAlreadyRegistered, typ)
	}
	if _, ok := c.byName[codec.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrCodecAlreadyRegistered, codec.Name())
	}
	c.defaults[typ] = codec
	c.byName[codec.Name()] = codec
	return nil
}

func (c *Codecs) UnregisterDefault(typ reflect.Type) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	codec, ok := c.defaults[typ]
	if !ok {
		return
	}
	delete(c.defaults, typ)
	delete(c.byName, codec.Name())
}

func (c *Codecs) ByName(name string) (MessageCodec, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	codec, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCodecNotFound, name)
	}
	return codec, nil
}

// Lookup returns the codec for val: the named one when name is set,
// otherwise the default of val's type. ok is false when val has no codec.
func (c *Codecs) Lookup(val any, name string) (codec MessageCodec, ok bool, err error) {
	if name != "" {
		codec, err = c.ByName(name)
		return codec, err == nil, err
	}
	if val == nil {
		return nil, false, nil
	}
	c.mutex.RLock()
	codec, ok = c.defaults[reflect.TypeOf(val)]
	c.mutex.RUnlock()
	return codec, ok, nil
}

// Transform applies the local delivery copy for val.
func (c *Codecs) Transform(val any, name string) (any, error) {
	codec, ok, err := c.Lookup(val, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		codec = JSONCodec{}
	}
	return codec.Transform(val), nil
}

const JSONCodecName = "json"

// JSONCodec is the fallback codec for maps, slices and scalars.
type JSONCodec struct{}

func (JSONCodec) Name() string {
	return JSONCodecName
}

func (JSONCodec) Encode(val any) ([]byte, error) {
	return json.Serializer{}.Encode(val)
}

func (JSONCodec) Decode(data []byte) (any, error) {
	var val any
	err := json.Serializer{}.Decode(data, &val)
	return val, err
}

// Transform deep copies maps and slices and keeps every other value as is.
func (JSONCodec) Transform(val any) any {
	return copyValue(val)
}

func copyValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		if v == nil {
			return v
		}
		res := make(map[string]any, len(v))
		for key, item := range v {
			res[key] = copyValue(item)
		}
		return res
	case []any:
		if v == nil {
			return v
		}
		res := make([]any, len(v))
		for i, item := range v {
			res[i] = copyValue(item)
		}
		return res
	default:
		return val
	}
}
