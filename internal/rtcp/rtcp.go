// Package rtcp implements a minimal RFC 3550/4585 RTCP decoder for the
// relay's control path, plus a PLI builder for requesting key-frames from
// publishers.
package rtcp

import "encoding/binary"

// RTCP payload types handled by the relay.
const (
	TypeSenderReport      = 200
	TypeReceiverReport    = 201
	TypeSourceDescription = 202
	TypeGoodbye           = 203
	TypeApplication       = 204
	TypeTransportFeedback = 205 // RTPFB
	TypePayloadFeedback   = 206 // PSFB
)

// Feedback message formats (RFC 4585 §6).
const (
	FormatNACK = 1 // RTPFB
	FormatPLI  = 1 // PSFB
	FormatFIR  = 4 // PSFB
)

const headerSize = 8

// Packet is a decoded RTCP packet. For RTPFB/PSFB packets Count carries the
// feedback message format and MediaSSRC the media source the feedback
// refers to.
type Packet struct {
	Version    byte
	Padding    bool
	Count      byte
	PacketType byte
	Length     uint16
	SSRC       uint32
	MediaSSRC  uint32
	Payload    []byte
}

// Decode parses one RTCP packet. It returns nil on short input, a version
// other than 2, or a declared length longer than the buffer.
func Decode(b []byte) *Packet {
	if len(b) < headerSize {
		return nil
	}

	version := b[0] >> 6
	if version != 2 {
		return nil
	}

	p := &Packet{
		Version:    version,
		Padding:    b[0]&0x20 != 0,
		Count:      b[0] & 0x1f,
		PacketType: b[1],
		Length:     binary.BigEndian.Uint16(b[2:4]),
		SSRC:       binary.BigEndian.Uint32(b[4:8]),
	}

	// Length counts 32-bit words, header word included. A declared size
	// smaller than the fixed header cannot be valid.
	declared := (int(p.Length) + 1) * 4
	if declared < headerSize || len(b) < declared {
		return nil
	}

	offset := headerSize
	if p.PacketType == TypeTransportFeedback || p.PacketType == TypePayloadFeedback {
		if declared < offset+4 {
			return nil
		}
		p.MediaSSRC = binary.BigEndian.Uint32(b[offset : offset+4])
		offset += 4
	}

	p.Payload = b[offset:declared]
	return p
}

// IsPLI reports whether this is a Picture Loss Indication.
func (p *Packet) IsPLI() bool {
	return p.PacketType == TypePayloadFeedback && p.Count == FormatPLI
}

// IsFIR reports whether this is a Full Intra Request.
func (p *Packet) IsFIR() bool {
	return p.PacketType == TypePayloadFeedback && p.Count == FormatFIR
}

// IsNACK reports whether this is a generic NACK.
func (p *Packet) IsNACK() bool {
	return p.PacketType == TypeTransportFeedback && p.Count == FormatNACK
}

// EncodePLI builds a minimal PLI request asking the media source for a
// key-frame.
func EncodePLI(senderSSRC, mediaSSRC uint32) []byte {
	b := make([]byte, 12)
	b[0] = 2<<6 | FormatPLI
	b[1] = TypePayloadFeedback
	binary.BigEndian.PutUint16(b[2:4], 2) // length in words minus one
	binary.BigEndian.PutUint32(b[4:8], senderSSRC)
	binary.BigEndian.PutUint32(b[8:12], mediaSSRC)
	return b
}
