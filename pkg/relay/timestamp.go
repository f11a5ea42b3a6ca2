package relay

import "time"

const (
	// fileTimeUnixEpochTicks is the number of 100-nanosecond ticks between
	// the platform's native epoch (1601-01-01) and the unix epoch
	// (1970-01-01). Sender timestamps at or above this value are absolute
	// tick counts; anything below it cannot be interpreted as absolute.
	fileTimeUnixEpochTicks int64 = 116_444_736_000_000_000

	// ticksPerMillisecond converts 100 ns ticks to milliseconds.
	ticksPerMillisecond int64 = 10_000

	// AudioFrameDurationMs is the fixed duration of one audio frame as
	// delivered by the platform's audio socket (16 kHz, 20 ms buffers).
	AudioFrameDurationMs int64 = 20
)

// NormalizeSenderTimestamp converts a platform sender timestamp into a
// wall-clock speak window in unix epoch milliseconds.
//
// Timestamps at or above the native epoch offset are treated as 100 ns ticks
// since 1601-01-01: start is the converted tick value and end is one frame
// later. Zero, negative, and small positive values (common for the first few
// packets of a stream) are unusable, so the window is anchored to now
// instead: end is now and start is one frame earlier. The exact result
// reports which path was taken so callers can log the downgrade; the
// function itself is pure.
func NormalizeSenderTimestamp(senderTimestamp int64, now time.Time) (startMs, endMs int64, exact bool) {
	if senderTimestamp >= fileTimeUnixEpochTicks {
		startMs = (senderTimestamp - fileTimeUnixEpochTicks) / ticksPerMillisecond
		return startMs, startMs + AudioFrameDurationMs, true
	}

	endMs = now.UnixMilli()
	return endMs - AudioFrameDurationMs, endMs, false
}
