package kinetic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHmacRoundTrip(t *testing.T) {
	key := []byte("shared-secret")
	command := []byte("serialized-command-bytes")

	tag := hmacCompute(key, command)
	require.True(t, hmacValidate(key, command, tag))
}

func TestHmacRejectsTamperedCommand(t *testing.T) {
	key := []byte("shared-secret")
	command := []byte("serialized-command-bytes")
	tag := hmacCompute(key, command)

	tampered := append([]byte(nil), command...)
	tampered[0] ^= 0xff
	require.False(t, hmacValidate(key, tampered, tag))
}

func TestHmacRejectsWrongKey(t *testing.T) {
	command := []byte("serialized-command-bytes")
	tag := hmacCompute([]byte("key-a"), command)
	require.False(t, hmacValidate([]byte("key-b"), command, tag))
}

func TestUint32RoundTrip(t *testing.T) {
	var buf [4]byte
	putUint32(buf[:], 0xdeadbeef)
	require.Equal(t, uint32(0xdeadbeef), uint32From(buf[:]))
}
