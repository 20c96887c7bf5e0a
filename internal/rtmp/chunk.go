package rtmp

import "encoding/binary"

const (
	// DefaultChunkSize is the fixed maximum chunk payload size. Set Chunk
	// Size messages are not exchanged; both directions assume this value.
	DefaultChunkSize = 128

	// commandChunkStreamID is used for all outbound command replies.
	commandChunkStreamID = 3

	// sentinelChunkStreamID stands in for chunk-stream id 0. Extended ids
	// are not resolved; everything that would use one is folded together.
	sentinelChunkStreamID = 64

	basicHeaderSize       = 1
	fullMessageHeaderSize = 11
)

// Message type ids the relay cares about.
const (
	TypeAudio   = 8
	TypeVideo   = 9
	TypeCommand = 20 // AMF0 command
)

// Message is one assembled RTMP message.
type Message struct {
	TypeID    uint8
	StreamID  uint32
	Timestamp uint32
	Payload   []byte
}

// chunkState tracks the in-flight message of one chunk stream. Exactly one
// message aggregates at a time per chunk-stream id.
type chunkState struct {
	timestamp uint32
	length    uint32
	typeID    uint8
	streamID  uint32
	buf       []byte
}

// Assembler reassembles RTMP messages from the post-handshake byte stream.
// Only format-0 basic headers are supported; a chunk with any other format
// stalls the stream until more input arrives, which matches the ingest
// clients this relay serves (they send every message with a full header).
type Assembler struct {
	chunkSize int
	streams   map[uint32]*chunkState
	buf       []byte
	cur       *chunkState
}

// NewAssembler returns an assembler with the given maximum chunk payload
// size; zero or negative means DefaultChunkSize.
func NewAssembler(chunkSize int) *Assembler {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Assembler{
		chunkSize: chunkSize,
		streams:   make(map[uint32]*chunkState),
	}
}

// Feed appends p to the internal buffer and returns every message that
// completed. Partial headers and partial chunks are kept for the next call.
func (a *Assembler) Feed(p []byte) []*Message {
	a.buf = append(a.buf, p...)

	var msgs []*Message
	for {
		if a.cur == nil {
			if len(a.buf) < basicHeaderSize {
				return msgs
			}

			if a.buf[0]>>6 != 0 {
				// Unsupported header format: stop consuming.
				return msgs
			}

			csid := uint32(a.buf[0] & 0x3f)
			if csid == 0 {
				csid = sentinelChunkStreamID
			}

			if len(a.buf) < basicHeaderSize+fullMessageHeaderSize {
				return msgs
			}

			hdr := a.buf[basicHeaderSize:]
			st, ok := a.streams[csid]
			if !ok {
				st = &chunkState{}
				a.streams[csid] = st
			}
			st.timestamp = uint32(hdr[0])<<16 | uint32(hdr[1])<<8 | uint32(hdr[2])
			st.length = uint32(hdr[3])<<16 | uint32(hdr[4])<<8 | uint32(hdr[5])
			st.typeID = hdr[6]
			st.streamID = binary.LittleEndian.Uint32(hdr[7:11])
			st.buf = make([]byte, 0, st.length)

			a.buf = a.buf[basicHeaderSize+fullMessageHeaderSize:]
			a.cur = st
		}

		st := a.cur
		for uint32(len(st.buf)) < st.length {
			remaining := int(st.length) - len(st.buf)
			n := a.chunkSize
			if remaining < n {
				n = remaining
			}
			if len(a.buf) < n {
				return msgs
			}
			st.buf = append(st.buf, a.buf[:n]...)
			a.buf = a.buf[n:]
		}

		msgs = append(msgs, &Message{
			TypeID:    st.typeID,
			StreamID:  st.streamID,
			Timestamp: st.timestamp,
			Payload:   st.buf,
		})
		st.buf = nil
		a.cur = nil
	}
}

// EncodeMessage frames a message as a single format-0 chunk: basic header,
// full message header, unsegmented payload.
func EncodeMessage(csid uint32, m *Message) []byte {
	b := make([]byte, basicHeaderSize+fullMessageHeaderSize+len(m.Payload))

	b[0] = byte(csid) & 0x3f

	ts := m.Timestamp
	if ts > 0xffffff {
		ts = 0xffffff
	}
	b[1] = byte(ts >> 16)
	b[2] = byte(ts >> 8)
	b[3] = byte(ts)

	length := len(m.Payload)
	b[4] = byte(length >> 16)
	b[5] = byte(length >> 8)
	b[6] = byte(length)

	b[7] = m.TypeID
	binary.LittleEndian.PutUint32(b[8:12], m.StreamID)

	copy(b[12:], m.Payload)
	return b
}
