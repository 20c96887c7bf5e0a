// Package amf0 implements the subset of AMF0 needed to bootstrap RTMP
// sessions: strings, numbers, objects and ECMA arrays on the read side, and
// strings and numbers on the write side for command replies.
package amf0

import (
	"encoding/binary"
	"errors"
	"math"
)

// AMF0 type markers.
const (
	markerNumber    = 0x00
	markerString    = 0x02
	markerObject    = 0x03
	markerECMAArray = 0x08
	markerObjectEnd = 0x09
)

var (
	ErrTruncated = errors.New("amf0: truncated value")
	ErrBadObject = errors.New("amf0: malformed object")
)

// Decoder reads AMF0 values from a buffer. A failed Decode leaves the read
// position where it was so the caller can retry with more data.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// More reports whether undecoded bytes remain.
func (d *Decoder) More() bool {
	return d.pos < len(d.buf)
}

// Decode reads the next value: string → string, number → float64,
// object/ECMA array → map[string]interface{}. Any unknown type marker
// decodes to nil.
func (d *Decoder) Decode() (interface{}, error) {
	start := d.pos

	v, err := d.decodeValue()
	if err != nil {
		d.pos = start
		return nil, err
	}
	return v, nil
}

func (d *Decoder) decodeValue() (interface{}, error) {
	if d.pos >= len(d.buf) {
		return nil, ErrTruncated
	}

	marker := d.buf[d.pos]
	d.pos++

	switch marker {
	case markerNumber:
		n, err := d.decodeNumber()
		if err != nil {
			return nil, err
		}
		return n, nil
	case markerString:
		s, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		return s, nil
	case markerObject:
		obj, err := d.decodeProperties()
		if err != nil {
			return nil, err
		}
		return obj, nil
	case markerECMAArray:
		// The count prefix is advisory; the terminator is authoritative.
		if d.pos+4 > len(d.buf) {
			return nil, ErrTruncated
		}
		d.pos += 4
		obj, err := d.decodeProperties()
		if err != nil {
			return nil, err
		}
		return obj, nil
	default:
		return nil, nil
	}
}

func (d *Decoder) decodeNumber() (float64, error) {
	if d.pos+8 > len(d.buf) {
		return 0, ErrTruncated
	}
	bits := binary.BigEndian.Uint64(d.buf[d.pos : d.pos+8])
	d.pos += 8
	return math.Float64frombits(bits), nil
}

func (d *Decoder) decodeString() (string, error) {
	if d.pos+2 > len(d.buf) {
		return "", ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(d.buf[d.pos : d.pos+2]))
	d.pos += 2
	if d.pos+n > len(d.buf) {
		return "", ErrTruncated
	}
	s := string(d.buf[d.pos : d.pos+n])
	d.pos += n
	return s, nil
}

func (d *Decoder) decodeProperties() (map[string]interface{}, error) {
	obj := make(map[string]interface{})
	for {
		key, err := d.decodeString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			if d.pos >= len(d.buf) {
				return nil, ErrTruncated
			}
			if d.buf[d.pos] != markerObjectEnd {
				return nil, ErrBadObject
			}
			d.pos++
			return obj, nil
		}
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
}

// AppendString appends an AMF0 string value to b.
func AppendString(b []byte, s string) []byte {
	b = append(b, markerString)
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}

// AppendNumber appends an AMF0 number value to b.
func AppendNumber(b []byte, f float64) []byte {
	b = append(b, markerNumber)
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}
