// Package api is the wire contract of the courier.v1.Messaging gRPC service.
// Payloads are JSON documents encoded with sonic; callers select the codec
// with the "json" content-subtype.
package api

import (
	"courier/internal/jsoncodec"

	"google.golang.org/grpc/encoding"
)

const CodecName = "json"

type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return jsoncodec.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return jsoncodec.Unmarshal(data, v)
}

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
