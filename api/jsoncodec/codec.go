// Package jsoncodec регистрирует gRPC-кодек "json" для сервисов orders.v1 и products.v1.
//
// Сообщения API описаны обычными Go-структурами, поэтому по проводу идёт JSON.
// Для proto.Message (grpc health) используется protojson.
package jsoncodec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Name: content-subtype кодека: application/grpc+json.
const Name = "json"

// Codec кодирует сообщения gRPC в JSON.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal реализует encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Marshal(msg)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal реализует encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if msg, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, msg)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsoncodec: unmarshal %T: %w", v, err)
	}
	return nil
}

// Name реализует encoding.Codec.
func (Codec) Name() string {
	return Name
}

// CallOption заставляет клиента отправлять запросы с content-subtype json.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(Name)
}
