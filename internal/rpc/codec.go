package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the gRPC content-subtype this package's messages are
// carried under: "application/grpc+json" on the wire, selected by the
// client via grpc.CallContentSubtype(codecName) and picked up by the
// server automatically from the request's content-type header.
const codecName = "json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec over
// encoding/json, letting this package's hand-written request/response
// structs ride gRPC's framing and method dispatch without protoc-gen-go.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
