// Package rpc is the control-plane transport: a gRPC server exposing
// ListChannels/TrackChannel/UntrackChannel over plain Go struct
// messages encoded with a hand-registered JSON codec, wired with the
// same grpc.Server/grpc.ServiceDesc primitives protoc-gen-go-grpc
// generates into. Keeping the messages as plain structs avoids a
// protoc step in the build.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec by delegating straight to
// encoding/json, selected whenever a call's content-subtype is "json".
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
