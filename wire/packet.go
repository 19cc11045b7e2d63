package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	// ProtocolVersion is the supported audio packet version (RTP version 2).
	ProtocolVersion = 2

	// HeaderSize is the fixed audio header size in bytes.
	HeaderSize = 12

	// MaxPacketSize is the MTU-safe datagram ceiling used on the mesh.
	MaxPacketSize = 1400

	// MaxPayloadSize is the largest audio payload that fits in one datagram.
	MaxPayloadSize = MaxPacketSize - HeaderSize

	// PayloadTypeOpus is the dynamic RTP payload type used for Opus frames.
	PayloadTypeOpus = 111
)

// TruncatedError is returned when a datagram is shorter than the fixed header.
type TruncatedError struct {
	Size int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("packet truncated: %d bytes, header needs %d", e.Size, HeaderSize)
}

// VersionError is returned when the version field does not match ProtocolVersion.
type VersionError struct {
	Version uint8
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported packet version %d (want %d)", e.Version, ProtocolVersion)
}

// Packet is a parsed audio wire packet. It is immutable once constructed;
// Serialize and ParsePacket never retain or alias the caller's buffers.
type Packet struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Payload        []byte
}

// Serialize converts the packet to its big-endian wire form.
// It fails only if the payload exceeds MaxPayloadSize.
func (p *Packet) Serialize() ([]byte, error) {
	if len(p.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload too large: %d bytes (max %d)", len(p.Payload), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(p.Payload))

	buf[0] = (p.Version & 0x03) << 6
	if p.Padding {
		buf[0] |= 0x20
	}
	if p.Extension {
		buf[0] |= 0x10
	}
	buf[0] |= p.CSRCCount & 0x0F

	buf[1] = p.PayloadType & 0x7F
	if p.Marker {
		buf[1] |= 0x80
	}

	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[HeaderSize:], p.Payload)

	return buf, nil
}

// ParsePacket converts a received datagram to a Packet.
//
// It fails with *TruncatedError when the datagram is shorter than the fixed
// header and with *VersionError on a version mismatch. Any other well-sized
// input parses; semantic validation is the caller's concern, because one
// malformed datagram must never interrupt a live stream.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, &TruncatedError{Size: len(data)}
	}

	version := data[0] >> 6
	if version != ProtocolVersion {
		return nil, &VersionError{Version: version}
	}

	p := &Packet{
		Version:        version,
		Padding:        data[0]&0x20 != 0,
		Extension:      data[0]&0x10 != 0,
		CSRCCount:      data[0] & 0x0F,
		Marker:         data[1]&0x80 != 0,
		PayloadType:    data[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
		Payload:        make([]byte, len(data)-HeaderSize),
	}
	copy(p.Payload, data[HeaderSize:])

	return p, nil
}

// IsAudio reports whether a datagram belongs to the audio message class.
// Audio packets carry the RTP version bits in the top of the first byte,
// so their first byte is always 0x80 or higher; control type codes are not.
func IsAudio(data []byte) bool {
	return len(data) > 0 && data[0]>>6 == ProtocolVersion
}
