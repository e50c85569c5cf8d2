// Package codec registers a JSON wire codec under gRPC's "proto" codec
// name, so the generated-shaped service stubs in pkg/api/services/vmm can
// exchange plain Go structs (pkg/api/types) without depending on a
// protoc-generated descriptor set.
package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const Name = "proto"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %T: %w", v, err)
	}

	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling into %T: %w", v, err)
	}

	return nil
}

func (jsonCodec) Name() string {
	return Name
}
