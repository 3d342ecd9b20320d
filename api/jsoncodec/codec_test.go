package jsoncodec

import (
	"testing"

	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type sample struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestCodecRegistered(t *testing.T) {
	if encoding.GetCodec(Name) == nil {
		t.Fatalf("codec %q is not registered", Name)
	}
	if (Codec{}).Name() != "json" {
		t.Fatalf("unexpected codec name: %s", Codec{}.Name())
	}
}

func TestCodecPlainStruct(t *testing.T) {
	codec := Codec{}

	data, err := codec.Marshal(&sample{ID: "a", Count: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"id":"a","count":2}` {
		t.Fatalf("unexpected payload: %s", data)
	}

	var out sample
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ID != "a" || out.Count != 2 {
		t.Fatalf("unexpected value: %+v", out)
	}
}

func TestCodecProtoMessage(t *testing.T) {
	codec := Codec{}

	data, err := codec.Marshal(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out healthpb.HealthCheckResponse
	if err := codec.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status: %v", out.GetStatus())
	}
}

func TestCodecUnmarshalError(t *testing.T) {
	var out sample
	if err := (Codec{}).Unmarshal([]byte("{"), &out); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
