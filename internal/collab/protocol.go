package collab

import (
	"encoding/binary"
	"fmt"
)

// FrameTag is one of the tagged frame kinds carried over the hub's binary
// WebSocket channel.
type FrameTag byte

const (
	TagSyncStep1      FrameTag = 1
	TagSyncStep2      FrameTag = 2
	TagUpdate         FrameTag = 3
	TagAwareness      FrameTag = 4
	TagAuth           FrameTag = 5
	TagQueryAwareness FrameTag = 6
)

func (t FrameTag) String() string {
	switch t {
	case TagSyncStep1:
		return "SYNC_STEP_1"
	case TagSyncStep2:
		return "SYNC_STEP_2"
	case TagUpdate:
		return "UPDATE"
	case TagAwareness:
		return "AWARENESS"
	case TagAuth:
		return "AUTH"
	case TagQueryAwareness:
		return "QUERY_AWARENESS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

func isKnownTag(t FrameTag) bool {
	switch t {
	case TagSyncStep1, TagSyncStep2, TagUpdate, TagAwareness, TagAuth, TagQueryAwareness:
		return true
	}
	return false
}

// EncodeFrame serializes a single tagged, length-prefixed frame: one tag
// byte, a big-endian uint32 payload length, then the payload.
func EncodeFrame(tag FrameTag, payload []byte) []byte {
	buf := make([]byte, 1+4+len(payload))
	buf[0] = byte(tag)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// DecodeFrame parses a single frame produced by EncodeFrame. Malformed
// frames (short header, length mismatch) are reported rather than
// silently truncated or padded, so the caller can close the connection
// with a protocol-error code.
func DecodeFrame(data []byte) (tag FrameTag, payload []byte, err error) {
	if len(data) < 5 {
		return 0, nil, fmt.Errorf("collab: frame too short (%d bytes)", len(data))
	}
	tag = FrameTag(data[0])
	length := binary.BigEndian.Uint32(data[1:5])
	rest := data[5:]
	if uint32(len(rest)) != length {
		return 0, nil, fmt.Errorf("collab: frame length mismatch: header says %d, got %d", length, len(rest))
	}
	return tag, rest, nil
}

// Close codes in the application-defined range (4000-4999), used
// alongside the standard RFC 6455 codes for conditions the protocol
// itself distinguishes.
const (
	CloseProtocolError = 4000
	CloseOverloaded    = 4001
)

// AuthStatus is the status code carried in a server→client AUTH frame.
type AuthStatus byte

const (
	AuthOK         AuthStatus = 0
	AuthRejected   AuthStatus = 1
	AuthOverloaded AuthStatus = 2
	AuthReadOnly   AuthStatus = 3
)

// EncodeAuthPayload packs an AUTH frame payload: one status byte followed
// by a UTF-8 reason string.
func EncodeAuthPayload(status AuthStatus, reason string) []byte {
	out := make([]byte, 1+len(reason))
	out[0] = byte(status)
	copy(out[1:], reason)
	return out
}
