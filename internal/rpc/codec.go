package rpc

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// JSONCodec carries plain Go structs as JSON bodies. It replaces connect's
// protojson codec under the same name, so the wire format is the usual
// application/json (or application/connect+json) connect protocol.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

func (JSONCodec) Name() string {
	return "json"
}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
