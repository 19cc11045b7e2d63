package wire

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies a floor-control message.
//
// Type codes stay below 0x80 so the control class can never be mistaken
// for an audio packet (see IsAudio).
type MessageType uint8

const (
	// MessageFloorRequest asks the group for permission to transmit.
	MessageFloorRequest MessageType = iota + 1
	// MessageFloorGranted answers a request positively. Its sequence field
	// echoes the request's sequence for correlation.
	MessageFloorGranted
	// MessageFloorDenied answers a request negatively. Its sequence field
	// echoes the request's sequence for correlation.
	MessageFloorDenied
	// MessageFloorTaken announces that the sender now holds the floor.
	MessageFloorTaken
	// MessageFloorReleased announces that the sender gave up the floor.
	MessageFloorReleased
	// MessageEmergency announces an unconditional emergency claim.
	MessageEmergency
	// MessageHeartbeat refreshes peer liveness and carries nothing else.
	MessageHeartbeat
)

// String returns a human-readable message type name.
func (t MessageType) String() string {
	switch t {
	case MessageFloorRequest:
		return "floor_request"
	case MessageFloorGranted:
		return "floor_granted"
	case MessageFloorDenied:
		return "floor_denied"
	case MessageFloorTaken:
		return "floor_taken"
	case MessageFloorReleased:
		return "floor_released"
	case MessageEmergency:
		return "emergency"
	case MessageHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Priority classifies a floor request.
type Priority uint8

const (
	// PriorityNormal is an ordinary push-to-talk request.
	PriorityNormal Priority = 0
	// PriorityHigh is reserved for command traffic.
	PriorityHigh Priority = 1
	// PriorityEmergency preempts any current speaker unconditionally.
	PriorityEmergency Priority = 2
)

// ControlMessageSize is the fixed control frame size:
// type (1) + priority (1) + sequence (4) + sender id (4).
const ControlMessageSize = 10

// ControlMessage is a parsed floor-control frame.
type ControlMessage struct {
	Type     MessageType
	Priority Priority
	Sequence uint32
	Sender   uint32
}

// Serialize converts the message to its big-endian wire form.
func (m *ControlMessage) Serialize() ([]byte, error) {
	if m.Type == 0 || m.Type > MessageHeartbeat {
		return nil, fmt.Errorf("invalid control message type %d", m.Type)
	}

	buf := make([]byte, ControlMessageSize)
	buf[0] = byte(m.Type)
	buf[1] = byte(m.Priority)
	binary.BigEndian.PutUint32(buf[2:6], m.Sequence)
	binary.BigEndian.PutUint32(buf[6:10], m.Sender)

	return buf, nil
}

// ParseControlMessage converts a received datagram to a ControlMessage.
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	if len(data) < ControlMessageSize {
		return nil, &TruncatedError{Size: len(data)}
	}

	m := &ControlMessage{
		Type:     MessageType(data[0]),
		Priority: Priority(data[1]),
		Sequence: binary.BigEndian.Uint32(data[2:6]),
		Sender:   binary.BigEndian.Uint32(data[6:10]),
	}
	if m.Type == 0 || m.Type > MessageHeartbeat {
		return nil, fmt.Errorf("unknown control message type %d", data[0])
	}

	return m, nil
}
