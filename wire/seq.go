package wire

// Sequence numbers live in a circular space and must never be compared with
// naive signed subtraction: near the wrap point that silently overflows.
// The helpers below implement the half-range comparison used by both the
// jitter buffer (16-bit audio sequence) and the floor arbiter (32-bit
// control sequence).

const (
	seqHalf16 = 1 << 15
	seqFull16 = 1 << 16

	seqHalf32 = int64(1) << 31
	seqFull32 = int64(1) << 32
)

// SignedSeqDiff returns the wrap-safe signed distance a-b over the 16-bit
// sequence space. The result is in [-32768, 32767]; a negative value means
// a is before b. For example, 65530 is 11 before 5.
func SignedSeqDiff(a, b uint16) int {
	d := (int(a) - int(b) + seqHalf16) % seqFull16
	if d < 0 {
		d += seqFull16
	}
	return d - seqHalf16
}

// SeqBefore reports whether sequence a is before sequence b, wrap-aware.
func SeqBefore(a, b uint16) bool {
	return SignedSeqDiff(a, b) < 0
}

// SignedSeqDiff32 returns the wrap-safe signed distance a-b over the 32-bit
// control sequence space.
func SignedSeqDiff32(a, b uint32) int64 {
	d := (int64(a) - int64(b) + seqHalf32) % seqFull32
	if d < 0 {
		d += seqFull32
	}
	return d - seqHalf32
}
