// Package wire implements the packet formats used on a meshwave channel.
//
// Two message classes share one multicast group. Audio packets carry an
// RFC 3550 style fixed 12-byte header followed by an opaque encoded audio
// payload. Control messages are the small fixed-size frames used by the
// floor arbitration protocol. The two classes are distinguished by the
// first byte: an audio packet always starts with the RTP version bits
// (0x80 and above), while control message type codes stay well below that
// range.
//
// Example:
//
//	pkt := &wire.Packet{
//	    Version:        wire.ProtocolVersion,
//	    PayloadType:    wire.PayloadTypeOpus,
//	    SequenceNumber: 42,
//	    Timestamp:      67200,
//	    SSRC:           0xDECAFBAD,
//	    Payload:        frame,
//	}
//
//	data, err := pkt.Serialize()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decoded, err := wire.ParsePacket(data)
//
// All functions in this package are stateless and safe for concurrent use.
package wire
