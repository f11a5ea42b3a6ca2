package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeSenderTimestamp tests exact conversion of an absolute
// sender clock value
func TestNormalizeSenderTimestamp(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// 2021-01-01T00:00:00Z in 100 ns ticks since 1601-01-01
	unixMs := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	ticks := unixMs*ticksPerMillisecond + fileTimeUnixEpochTicks

	start, end, exact := NormalizeSenderTimestamp(ticks, now)
	assert.True(t, exact)
	assert.Equal(t, unixMs, start)
	assert.Equal(t, unixMs+AudioFrameDurationMs, end)
}

// TestNormalizeSenderTimestampFallback tests the wall-clock fallback for
// values the normalizer cannot interpret as absolute
func TestNormalizeSenderTimestampFallback(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, ts := range []int64{0, -1, 12345, fileTimeUnixEpochTicks - 1} {
		start, end, exact := NormalizeSenderTimestamp(ts, now)
		assert.False(t, exact, "timestamp %d", ts)
		assert.Equal(t, now.UnixMilli(), end, "timestamp %d", ts)
		assert.Equal(t, now.UnixMilli()-AudioFrameDurationMs, start, "timestamp %d", ts)
	}
}

// TestNormalizeSenderTimestampEpochBoundary tests the exact epoch offset
// converting to the unix epoch itself
func TestNormalizeSenderTimestampEpochBoundary(t *testing.T) {
	now := time.Now()

	start, end, exact := NormalizeSenderTimestamp(fileTimeUnixEpochTicks, now)
	assert.True(t, exact)
	assert.Equal(t, int64(0), start)
	assert.Equal(t, AudioFrameDurationMs, end)
}

// TestNormalizeSenderTimestampWindowWidth tests that every exact window is
// one frame duration wide
func TestNormalizeSenderTimestampWindowWidth(t *testing.T) {
	now := time.Now()
	ticks := fileTimeUnixEpochTicks + 1_700_000_000_000*ticksPerMillisecond

	start, end, exact := NormalizeSenderTimestamp(ticks, now)
	assert.True(t, exact)
	assert.Equal(t, AudioFrameDurationMs, end-start)
}
