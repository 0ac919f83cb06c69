// Package creditv1 is the service-to-service gRPC contract of the credit daemon. Messages
// travel as JSON using a codec registered under the "json" content subtype.
//
// There is no protobuf schema. Go clients get the codec by importing this package and
// NewCreditServiceClient selects it per call. Clients in other languages must send
// content-type "application/grpc+json" and register an equivalent JSON marshaller for
// the message shapes in messages.go (field names follow the json tags). A client that
// sends plain "application/grpc" is answered with codes.Internal by the server's
// default proto codec.
package creditv1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content subtype clients must request.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (jsonCodec) Unmarshal(data []byte, value any) error {
	return json.Unmarshal(data, value)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
