package kinetic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultCodecCommandRoundTrip(t *testing.T) {
	codec := DefaultCodec{}

	cmd := &Command{
		Header: CommandHeader{
			ClusterVersion: 7,
			ConnectionID:   42,
			Sequence:       9,
			AckSequence:    8,
			MessageType:    PUT,
			Timeout:        5000,
			EarlyExit:      true,
			Priority:       1,
		},
		Body: Body{KeyValue: &KeyValue{
			Key:             []byte("k"),
			DbVersion:       []byte("v0"),
			NewVersion:      []byte("v1"),
			Tag:             []byte("T"),
			Force:           true,
			Synchronization: SyncWriteThrough,
		}},
	}

	data, err := codec.EncodeCommand(cmd)
	require.NoError(t, err)

	got, err := codec.DecodeCommand(data)
	require.NoError(t, err)
	require.Equal(t, cmd.Header, got.Header)
	require.Equal(t, cmd.Body.KeyValue, got.Body.KeyValue)
}

func TestDefaultCodecRangeRoundTrip(t *testing.T) {
	codec := DefaultCodec{}
	cmd := &Command{
		Header: CommandHeader{MessageType: GETKEYRANGE_RESPONSE},
		Body: Body{Range: &KeyRange{
			StartKey:          []byte("a"),
			EndKey:            []byte("z"),
			StartKeyInclusive: true,
			MaxReturned:       100,
			Keys:              [][]byte{[]byte("a1"), []byte("a2")},
		}},
	}
	data, err := codec.EncodeCommand(cmd)
	require.NoError(t, err)
	got, err := codec.DecodeCommand(data)
	require.NoError(t, err)
	require.Equal(t, cmd.Body.Range, got.Body.Range)
}

func TestDefaultCodecMessageRoundTrip(t *testing.T) {
	codec := DefaultCodec{}
	msg := &Message{
		CommandBytes: []byte("opaque-command-bytes"),
		Auth:         Auth{Identity: 123, Hmac: []byte("tag")},
	}
	data, err := codec.EncodeMessage(msg)
	require.NoError(t, err)
	got, err := codec.DecodeMessage(data)
	require.NoError(t, err)
	require.Equal(t, msg.CommandBytes, got.CommandBytes)
	require.Equal(t, msg.Auth.Identity, got.Auth.Identity)
	require.Equal(t, msg.Auth.Hmac, got.Auth.Hmac)
}

func TestDefaultCodecDecodeTruncated(t *testing.T) {
	codec := DefaultCodec{}
	_, err := codec.DecodeCommand([]byte{1, 2, 3})
	require.ErrorIs(t, err, errTruncated)
}
