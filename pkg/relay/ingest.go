package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HandleAudioMedia processes one audio event: for each per-speaker
// sub-buffer it copies the payload out of the platform-owned buffer,
// resolves the source id to a participant, normalizes the sender timestamp,
// and appends an AudioChunk to the event's batch. The whole batch goes out
// as one message, never one message per sub-buffer. While the channel is
// disconnected the event is dropped outright (buffers still released);
// audio lost during a disconnected window is accepted data loss.
func (s *CallSession) HandleAudioMedia(event AudioEvent) {
	if !s.channel.Connected() {
		for _, sub := range event.Buffers {
			releaseBuffer(sub.Buffer, s.logger)
		}
		s.logger.Debug("relay channel disconnected, dropping audio event",
			zap.String("callID", s.callID),
			zap.Int("buffers", len(event.Buffers)),
		)
		return
	}

	now := time.Now()
	batch := make([]AudioChunk, 0, len(event.Buffers))
	for _, sub := range event.Buffers {
		if chunk, ok := s.ingestAudioBuffer(sub, now); ok {
			batch = append(batch, chunk)
		}
	}
	if len(batch) == 0 {
		return
	}

	if err := s.channel.SendAudioBatch(batch); err != nil {
		s.logger.Error("failed to send audio batch",
			zap.String("callID", s.callID),
			zap.Int("chunks", len(batch)),
			zap.Error(err),
		)
	}
}

// ingestAudioBuffer converts one sub-buffer into an AudioChunk. The
// platform buffer is released exactly once on every exit path. A fault in
// one buffer never aborts the rest of the batch.
func (s *CallSession) ingestAudioBuffer(sub UnmixedAudioBuffer, now time.Time) (AudioChunk, bool) {
	defer releaseBuffer(sub.Buffer, s.logger)

	if sub.Buffer == nil {
		return AudioChunk{}, false
	}
	src := sub.Buffer.Bytes()
	if len(src) == 0 {
		return AudioChunk{}, false
	}

	// The platform buffer is only valid inside this callback.
	data := make([]byte, len(src))
	copy(data, src)

	ctx, cancel := context.WithTimeout(context.Background(), identityLookupTimeout)
	info := s.attribution.Resolve(ctx, sub.SourceID)
	cancel()

	startMs, endMs, exact := NormalizeSenderTimestamp(sub.SenderTimestamp, now)
	if !exact && sub.SenderTimestamp > 0 {
		s.logger.Debug("sender timestamp below epoch offset, using wall clock",
			zap.Uint32("sourceID", sub.SourceID),
			zap.Int64("timestamp", sub.SenderTimestamp),
		)
	}

	return AudioChunk{
		Buffer:       data,
		Email:        info.Email,
		DisplayName:  info.DisplayName,
		Role:         info.Role,
		SpeakStartMs: startMs,
		SpeakEndMs:   endMs,
	}, true
}

// HandleVideoMedia processes one frame from the subscribed video source:
// copies the payload, attaches the format descriptors and capture time, and
// forwards it immediately as its own message. Frames are never batched.
func (s *CallSession) HandleVideoMedia(event VideoEvent) {
	defer releaseBuffer(event.Buffer, s.logger)

	if !s.channel.Connected() {
		s.logger.Debug("relay channel disconnected, dropping video frame",
			zap.String("callID", s.callID),
			zap.Uint32("sourceID", event.SourceID),
		)
		return
	}
	if event.Buffer == nil {
		return
	}
	src := event.Buffer.Bytes()
	if len(src) == 0 {
		return
	}

	data := make([]byte, len(src))
	copy(data, src)

	frame := VideoFrame{
		Buffer:         data,
		Format:         event.Format,
		OriginalFormat: event.OriginalFormat,
		Timestamp:      time.Now(),
	}
	if err := s.channel.SendVideoFrame(frame); err != nil {
		s.logger.Error("failed to send video frame",
			zap.String("callID", s.callID),
			zap.Uint32("sourceID", event.SourceID),
			zap.Error(err),
		)
	}
}

// releaseBuffer disposes a platform buffer, containing any fault in the
// native release so it cannot take down the callback or abort a batch.
func releaseBuffer(buf MediaBuffer, logger *zap.Logger) {
	if buf == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("media buffer release panicked", zap.Any("panic", r))
		}
	}()
	buf.Release()
}
