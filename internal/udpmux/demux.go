// Package udpmux owns the UDP media socket: it classifies inbound datagrams
// by their leading bytes and hands every datagram, classified or not, to the
// external packet handler that terminates STUN/DTLS/ICE and relays media.
package udpmux

// Protocol is the advisory classification of a datagram. It is used for
// diagnostics and traffic counters only; the packet handler performs the
// authoritative routing.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolSTUN
	ProtocolDTLS
	ProtocolRTP
	ProtocolRTCP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSTUN:
		return "stun"
	case ProtocolDTLS:
		return "dtls"
	case ProtocolRTP:
		return "rtp"
	case ProtocolRTCP:
		return "rtcp"
	default:
		return "unknown"
	}
}

// Classify inspects the first byte of a datagram (and the second for
// RTP/RTCP disambiguation) without consuming it. RFC 7983 demultiplexing
// ranges: 0–1 STUN, 20–63 DTLS, 128–191 RTP/RTCP.
func Classify(b []byte) Protocol {
	if len(b) == 0 {
		return ProtocolUnknown
	}

	switch first := b[0]; {
	case first <= 1:
		return ProtocolSTUN
	case first >= 20 && first <= 63:
		return ProtocolDTLS
	case first >= 128 && first <= 191:
		if len(b) > 1 && b[1] >= 200 && b[1] <= 210 {
			return ProtocolRTCP
		}
		return ProtocolRTP
	default:
		return ProtocolUnknown
	}
}
