package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControlMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message ControlMessage
	}{
		{
			name: "Normal floor request",
			message: ControlMessage{
				Type:     MessageFloorRequest,
				Priority: PriorityNormal,
				Sequence: 1,
				Sender:   0x12345678,
			},
		},
		{
			name: "Emergency claim",
			message: ControlMessage{
				Type:     MessageEmergency,
				Priority: PriorityEmergency,
				Sequence: 0xFFFFFFFF,
				Sender:   1,
			},
		},
		{
			name: "Heartbeat",
			message: ControlMessage{
				Type:     MessageHeartbeat,
				Sequence: 42,
				Sender:   0xDEADBEEF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.message.Serialize()
			require.NoError(t, err)
			require.Len(t, data, ControlMessageSize)

			decoded, err := ParseControlMessage(data)
			require.NoError(t, err)
			assert.Equal(t, &tt.message, decoded)
		})
	}
}

func TestControlMessageInvalidType(t *testing.T) {
	_, err := (&ControlMessage{Type: 0}).Serialize()
	assert.Error(t, err)

	data := make([]byte, ControlMessageSize)
	data[0] = 0x7F // below the audio range but not a known type
	_, err = ParseControlMessage(data)
	assert.Error(t, err)
}

func TestParseControlMessageTruncated(t *testing.T) {
	_, err := ParseControlMessage(make([]byte, ControlMessageSize-1))
	require.Error(t, err)

	var truncated *TruncatedError
	assert.True(t, errors.As(err, &truncated))
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "floor_request", MessageFloorRequest.String())
	assert.Equal(t, "heartbeat", MessageHeartbeat.String())
	assert.Equal(t, "unknown", MessageType(200).String())
}
