package serialize

// Codes carried in the serializer byte of every frame.
const (
	CodeJSON  byte = 1
	CodeProto byte = 2
)

// Serializer -> body encoding of a frame. Decode into an *any must yield
// plain maps, slices and scalars so bus consumers can read the body.
type Serializer interface {
	Code() byte
	Encode(val any) ([]byte, error)
	Decode(data []byte, val any) error
}
