package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternSum(t *testing.T) {
	data := patternBytes(4096)

	tt := []struct {
		name   string
		offset uint32
		size   int
	}{
		{"empty", 0, 0},
		{"one byte", 0, 1},
		{"unaligned byte", 3, 1},
		{"one word", 0, 4},
		{"straddling words", 2, 4},
		{"unaligned tail", 100, 801},
		{"everything", 0, 4096},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			chunk := data[tc.offset : int(tc.offset)+tc.size]
			require.Equal(t, expectedPatternSum(tc.size, tc.offset), patternSum(chunk, tc.offset))
		})
	}
}

func TestPatternSum_Corrupted(t *testing.T) {
	data := patternBytes(64)
	data[17] ^= 0x01
	require.NotEqual(t, expectedPatternSum(len(data), 0), patternSum(data, 0))
}

func TestPatternSum_WrongOffset(t *testing.T) {
	data := patternBytes(64)
	require.NotEqual(t, expectedPatternSum(32, 4), patternSum(data[:32], 4))
}

func TestExpectedPatternSum(t *testing.T) {
	// Words 0, 1 and 2 of the counter.
	require.Equal(t, uint32(3), expectedPatternSum(12, 0))
	// The low byte of word 1 alone.
	require.Equal(t, uint32(1), expectedPatternSum(1, 7))
}
