package kinetic

import (
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 -- HMAC-SHA1 is the Kinetic wire protocol's fixed authentication algorithm.
	"crypto/subtle"
	"encoding/binary"
)

// putUint32 / uint32From perform the big-endian host<->network
// conversions used throughout the frame and command envelope.
func putUint32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func uint32From(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func putUint64(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}

func uint64From(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// hmacCompute returns HMAC-SHA1(key, u32be(len(command)) || command), the
// authentication tag carried in the command envelope's hmacAuth field.
// The length prefix disambiguates concatenation so two different
// (command, trailing-garbage) pairs can never hash identically.
func hmacCompute(key, command []byte) []byte {
	var lenPrefix [4]byte
	putUint32(lenPrefix[:], uint32(len(command)))

	mac := hmac.New(sha1.New, key)
	mac.Write(lenPrefix[:])
	mac.Write(command)
	return mac.Sum(nil)
}

// hmacValidate recomputes the tag over command and compares it against
// want in constant time.
func hmacValidate(key, command, want []byte) bool {
	got := hmacCompute(key, command)
	return subtle.ConstantTimeCompare(got, want) == 1
}
