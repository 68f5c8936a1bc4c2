package kinetic

import "fmt"

// Wire frame layout: header || commandBytes || value.
//
// The fixed header is 9 bytes, big-endian:
//
//	offset  size  field
//	 0       1    magic = 'F' (0x46)
//	 1       4    command length
//	 5       4    value length
const (
	headerLen    = 9
	headerMagic  = 'F'
	hdrMagicOff  = 0
	hdrCmdLenOff = 1
	hdrValLenOff = 5

	// defaultMaxCommandLen and defaultMaxValueLen bound decoded lengths
	// so a corrupt or malicious header can't force an unbounded
	// allocation. The value bound carries a margin over 1 MiB to allow
	// for slightly oversized writes some drives perform.
	defaultMaxCommandLen = 1 << 20
	defaultMaxValueLen   = 1<<20 + 64<<10
)

// FrameLimits bounds the command and value segment lengths a codec will
// accept when decoding a header. Zero fields fall back to the package
// defaults.
type FrameLimits struct {
	MaxCommandLen uint32
	MaxValueLen   uint32
}

func (l FrameLimits) withDefaults() FrameLimits {
	if l.MaxCommandLen == 0 {
		l.MaxCommandLen = defaultMaxCommandLen
	}
	if l.MaxValueLen == 0 {
		l.MaxValueLen = defaultMaxValueLen
	}
	return l
}

// Header is the decoded form of the 9-byte fixed header.
type Header struct {
	CommandLength uint32
	ValueLength   uint32
}

// EncodeHeader writes h as the 9-byte wire header, appending to dst.
// Encoding is infallible given a Header produced by DecodeHeader or
// populated from already-validated lengths.
func EncodeHeader(dst []byte, h Header) []byte {
	var b [headerLen]byte
	b[hdrMagicOff] = headerMagic
	putUint32(b[hdrCmdLenOff:], h.CommandLength)
	putUint32(b[hdrValLenOff:], h.ValueLength)
	return append(dst, b[:]...)
}

// DecodeHeader parses the 9-byte fixed header from buf. buf must be
// exactly headerLen bytes; callers read that many bytes off the wire
// before calling DecodeHeader.
func DecodeHeader(buf []byte, limits FrameLimits) (Header, *Status) {
	if len(buf) != headerLen {
		return Header{}, newStatus(DataError, fmt.Sprintf("short header: %d bytes", len(buf)))
	}
	if buf[hdrMagicOff] != headerMagic {
		return Header{}, newStatus(DataError, fmt.Sprintf("bad magic byte 0x%02x", buf[hdrMagicOff]))
	}
	limits = limits.withDefaults()
	h := Header{
		CommandLength: uint32From(buf[hdrCmdLenOff:]),
		ValueLength:   uint32From(buf[hdrValLenOff:]),
	}
	if h.CommandLength > limits.MaxCommandLen {
		return Header{}, newStatus(DataError, fmt.Sprintf("command length %d exceeds limit %d", h.CommandLength, limits.MaxCommandLen))
	}
	if h.ValueLength > limits.MaxValueLen {
		return Header{}, newStatus(DataError, fmt.Sprintf("value length %d exceeds limit %d", h.ValueLength, limits.MaxValueLen))
	}
	return h, nil
}

// EncodeFrame appends the full wire frame (header, command, value) to dst.
func EncodeFrame(dst []byte, command, value []byte) []byte {
	dst = EncodeHeader(dst, Header{CommandLength: uint32(len(command)), ValueLength: uint32(len(value))})
	dst = append(dst, command...)
	dst = append(dst, value...)
	return dst
}
