// Package rtp implements a minimal RFC 3550 RTP packet codec for the
// relay's UDP media path. Decoding is strict about structure but makes no
// attempt to interpret payloads; classification helpers are advisory only,
// the authoritative media mapping comes from SDP negotiation outside this
// service.
package rtp

import "encoding/binary"

const (
	headerSize = 12

	// Well-known dynamic payload types used by the platform's clients.
	payloadTypeISAC = 103
	payloadTypeOpus = 111
)

// Packet is a decoded RTP packet. Slices alias the buffer passed to Decode;
// packets are ephemeral and must not outlive the datagram they came from.
type Packet struct {
	Version        byte
	Padding        bool
	Extension      bool
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32

	ExtensionProfile uint16
	ExtensionData    []byte

	Payload []byte

	// Size is the total encoded size in bytes, including padding.
	Size int
}

// Decode parses an RTP packet. It returns nil on any malformed input: short
// buffer, wrong version, or a truncated CSRC list or extension block.
func Decode(b []byte) *Packet {
	if len(b) < headerSize {
		return nil
	}

	version := b[0] >> 6
	if version != 2 {
		return nil
	}

	p := &Packet{
		Version:        version,
		Padding:        b[0]&0x20 != 0,
		Extension:      b[0]&0x10 != 0,
		Marker:         b[1]&0x80 != 0,
		PayloadType:    b[1] & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(b[2:4]),
		Timestamp:      binary.BigEndian.Uint32(b[4:8]),
		SSRC:           binary.BigEndian.Uint32(b[8:12]),
		Size:           len(b),
	}

	offset := headerSize

	csrcCount := int(b[0] & 0x0f)
	if csrcCount > 0 {
		if len(b) < offset+csrcCount*4 {
			return nil
		}
		p.CSRC = make([]uint32, csrcCount)
		for i := 0; i < csrcCount; i++ {
			p.CSRC[i] = binary.BigEndian.Uint32(b[offset : offset+4])
			offset += 4
		}
	}

	if p.Extension {
		if len(b) < offset+4 {
			return nil
		}
		p.ExtensionProfile = binary.BigEndian.Uint16(b[offset : offset+2])
		extLen := int(binary.BigEndian.Uint16(b[offset+2:offset+4])) * 4
		offset += 4
		if len(b) < offset+extLen {
			return nil
		}
		p.ExtensionData = b[offset : offset+extLen]
		offset += extLen
	}

	p.Payload = b[offset:]

	if p.Padding && len(p.Payload) > 0 {
		padLen := int(p.Payload[len(p.Payload)-1])
		if padLen > 0 && padLen <= len(p.Payload) {
			p.Payload = p.Payload[:len(p.Payload)-padLen]
		}
	}

	return p
}

// Encode serialises the packet. When Padding is set, trailing zero bytes
// plus a one-byte pad length are appended so the total size is a multiple
// of four.
func (p *Packet) Encode() []byte {
	size := headerSize + len(p.CSRC)*4 + len(p.Payload)
	if p.Extension {
		size += 4 + len(p.ExtensionData)
	}

	padLen := 0
	if p.Padding {
		padLen = 4 - size%4
		if padLen == 0 {
			padLen = 4
		}
	}

	b := make([]byte, size+padLen)

	b[0] = p.Version<<6 | byte(len(p.CSRC))&0x0f
	if p.Padding {
		b[0] |= 0x20
	}
	if p.Extension {
		b[0] |= 0x10
	}
	b[1] = p.PayloadType & 0x7f
	if p.Marker {
		b[1] |= 0x80
	}
	binary.BigEndian.PutUint16(b[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(b[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(b[8:12], p.SSRC)

	offset := headerSize
	for _, csrc := range p.CSRC {
		binary.BigEndian.PutUint32(b[offset:offset+4], csrc)
		offset += 4
	}

	if p.Extension {
		binary.BigEndian.PutUint16(b[offset:offset+2], p.ExtensionProfile)
		binary.BigEndian.PutUint16(b[offset+2:offset+4], uint16(len(p.ExtensionData)/4))
		offset += 4
		copy(b[offset:], p.ExtensionData)
		offset += len(p.ExtensionData)
	}

	copy(b[offset:], p.Payload)
	offset += len(p.Payload)

	if padLen > 0 {
		// Zero pad bytes are already in place; write the pad length last.
		b[offset+padLen-1] = byte(padLen)
	}

	return b
}

// IsVideo reports whether the payload type falls in the dynamic range
// conventionally used for video. Best effort only.
func (p *Packet) IsVideo() bool {
	return p.PayloadType >= 96 && p.PayloadType <= 127
}

// IsAudio reports whether the payload type looks like audio: the static
// range, or the well-known Opus/ISAC dynamic types. Best effort only.
func (p *Packet) IsAudio() bool {
	return p.PayloadType <= 95 ||
		p.PayloadType == payloadTypeOpus ||
		p.PayloadType == payloadTypeISAC
}
