package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignedSeqDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b uint16
		want int
	}{
		{"Equal", 100, 100, 0},
		{"Simple forward", 105, 100, 5},
		{"Simple backward", 100, 105, -5},
		{"Forward across wrap", 5, 65530, 11},
		{"Backward across wrap", 65530, 5, -11},
		{"Zero after max", 0, 65535, 1},
		{"Half range boundary", 32768, 0, -32768},
		{"Just inside half range", 32767, 0, 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SignedSeqDiff(tt.a, tt.b))
		})
	}
}

func TestSeqBefore(t *testing.T) {
	// 65530 is before 5: the distance is 11, not 65525.
	assert.True(t, SeqBefore(65530, 5))
	assert.False(t, SeqBefore(5, 65530))
	assert.False(t, SeqBefore(7, 7))
	assert.True(t, SeqBefore(65535, 0))
}

func TestSignedSeqDiff32(t *testing.T) {
	tests := []struct {
		name string
		a, b uint32
		want int64
	}{
		{"Equal", 9, 9, 0},
		{"Forward", 10, 3, 7},
		{"Backward", 3, 10, -7},
		{"Forward across wrap", 2, 0xFFFFFFFE, 4},
		{"Backward across wrap", 0xFFFFFFFE, 2, -4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SignedSeqDiff32(tt.a, tt.b))
		})
	}
}
