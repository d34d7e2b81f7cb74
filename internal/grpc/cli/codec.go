package cli

import (
	"github.com/bytedance/sonic"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of the daemon protocol
const CodecName = "json"

// Codec encodes daemon messages as JSON. The daemon speaks plain Go
// structs over gRPC framing, so no generated protobuf types are needed.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

func (Codec) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
