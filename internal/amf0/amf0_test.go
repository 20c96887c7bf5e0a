package amf0

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestDecodeString(t *testing.T) {
	d := NewDecoder(AppendString(nil, "connect"))
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != "connect" {
		t.Errorf("got %v, want connect", v)
	}
	if d.More() {
		t.Error("expected buffer to be fully consumed")
	}
}

func TestDecodeNumber(t *testing.T) {
	d := NewDecoder(AppendNumber(nil, 3.5))
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != 3.5 {
		t.Errorf("got %v, want 3.5", v)
	}
}

func TestDecodeObject(t *testing.T) {
	// {app: "live", capabilities: 31} followed by the empty-key terminator.
	b := []byte{0x03}
	b = appendKey(b, "app")
	b = AppendString(b, "live")
	b = appendKey(b, "capabilities")
	b = AppendNumber(b, 31)
	b = append(b, 0x00, 0x00, 0x09)

	d := NewDecoder(b)
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := map[string]interface{}{"app": "live", "capabilities": float64(31)}
	if !reflect.DeepEqual(v, want) {
		t.Errorf("got %v, want %v", v, want)
	}
}

func TestDecodeECMAArray(t *testing.T) {
	b := []byte{0x08, 0x00, 0x00, 0x00, 0x01}
	b = appendKey(b, "duration")
	b = AppendNumber(b, 0)
	b = append(b, 0x00, 0x00, 0x09)

	d := NewDecoder(b)
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("got %T, want map", v)
	}
	if obj["duration"] != float64(0) {
		t.Errorf("duration = %v, want 0", obj["duration"])
	}
}

func TestDecodeUnknownMarker(t *testing.T) {
	// Null (0x05) then a string; null decodes to nil and consumes one byte.
	b := []byte{0x05}
	b = AppendString(b, "cam1")

	d := NewDecoder(b)
	v, err := d.Decode()
	if err != nil {
		t.Fatalf("decode null: %v", err)
	}
	if v != nil {
		t.Errorf("got %v, want nil", v)
	}

	v, err = d.Decode()
	if err != nil {
		t.Fatalf("decode string after null: %v", err)
	}
	if v != "cam1" {
		t.Errorf("got %v, want cam1", v)
	}
}

func TestDecodeTruncatedRestoresPosition(t *testing.T) {
	full := AppendNumber(nil, math.Pi)
	d := NewDecoder(full[:5])

	if _, err := d.Decode(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	// Position must be unchanged: the same decode fails identically.
	if _, err := d.Decode(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated on retry, got %v", err)
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	d := NewDecoder(nil)
	if _, err := d.Decode(); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeCommandSequence(t *testing.T) {
	b := AppendString(nil, "createStream")
	b = AppendNumber(b, 2)
	b = append(b, 0x05) // null

	d := NewDecoder(b)

	name, err := d.Decode()
	if err != nil || name != "createStream" {
		t.Fatalf("name = %v, err = %v", name, err)
	}
	txn, err := d.Decode()
	if err != nil || txn != float64(2) {
		t.Fatalf("txn = %v, err = %v", txn, err)
	}
	third, err := d.Decode()
	if err != nil || third != nil {
		t.Fatalf("third = %v, err = %v", third, err)
	}
}

// appendKey writes a bare object key (no type marker).
func appendKey(b []byte, key string) []byte {
	b = append(b, byte(len(key)>>8), byte(len(key)))
	return append(b, key...)
}
