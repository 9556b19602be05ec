package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestEncodeVersion_TwoBytesLittleEndian(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeVersion(&buf, 1); err != nil {
		t.Fatalf("EncodeVersion: %v", err)
	}
	got := buf.Bytes()
	want := []byte{0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDecodeSettings_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(ClientSettings{SamplingInterval: 1_000_000}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeSettings(&buf)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if got.SamplingInterval != 1_000_000 {
		t.Fatalf("expected 1_000_000, got %d", got.SamplingInterval)
	}
}

func TestDecodeSettings_UnknownFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	raw := map[string]any{
		"sampling_interval": uint64(5000),
		"future_field":      "whatever",
	}
	if err := msgpack.NewEncoder(&buf).Encode(raw); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeSettings(&buf)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if got.SamplingInterval != 5000 {
		t.Fatalf("expected 5000, got %d", got.SamplingInterval)
	}
}

func TestDecodeSettings_MissingRequiredField_ZeroValue(t *testing.T) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(map[string]any{}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeSettings(&buf)
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if got.SamplingInterval != 0 {
		t.Fatalf("expected zero value for missing field, got %d", got.SamplingInterval)
	}
}

func TestEncodeMetadata_StructurallyDistinctFromSnapshot(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeMetadata(&buf, map[string]map[string]string{
		"~a": {"plot": "p1"},
		"~b": {"plot": "p1"},
	})
	if err != nil {
		t.Fatalf("EncodeMetadata: %v", err)
	}

	var decoded map[string]any
	if err := msgpack.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded["metrics"]; !ok {
		t.Fatalf("expected a metrics key, got %v", decoded)
	}
	if _, ok := decoded["t"]; ok {
		t.Fatalf("metadata packet must never carry a t key (packet discrimination)")
	}
	if _, ok := decoded["d"]; ok {
		t.Fatalf("metadata packet must never carry a d key (packet discrimination)")
	}
}

func TestEncodeSnapshot_StructurallyDistinctFromMetadata(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeSnapshot(&buf, 12345, map[string]float64{"~x": 42.0})
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	var decoded map[string]any
	if err := msgpack.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := decoded["metrics"]; ok {
		t.Fatalf("snapshot packet must never carry a metrics key (packet discrimination)")
	}
	tv, ok := decoded["t"]
	if !ok {
		t.Fatalf("expected a t key, got %v", decoded)
	}
	if uint64ish(tv) != 12345 {
		t.Fatalf("expected t=12345, got %v", tv)
	}
}

func TestEncodeSnapshot_NonFiniteValuesCoercedToZero(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeSnapshot(&buf, 0, map[string]float64{
		"~nan":     math.NaN(),
		"~posinf":  math.Inf(1),
		"~neginf":  math.Inf(-1),
		"~regular": 3.5,
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	var decoded SnapshotPacket
	if err := msgpack.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.D["~nan"] != 0 || decoded.D["~posinf"] != 0 || decoded.D["~neginf"] != 0 {
		t.Fatalf("expected non-finite values coerced to 0.0, got %+v", decoded.D)
	}
	if decoded.D["~regular"] != 3.5 {
		t.Fatalf("expected regular value untouched, got %v", decoded.D["~regular"])
	}
}

func uint64ish(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case uint8:
		return uint64(n)
	case int8:
		return uint64(n)
	default:
		return 0
	}
}
