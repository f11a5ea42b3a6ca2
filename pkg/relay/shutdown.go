package relay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown tears the session down in a fixed order: release the video
// subscription, wait briefly for the frame player startup task, detach the
// event handlers, shut the player down, drain the playback buffer queue,
// and close the relay channel last so late frames can still flush. Each
// step is fault-isolated; a panic or error in one never skips the rest.
// Safe to call multiple times and from concurrent paths.
func (s *CallSession) Shutdown(ctx context.Context) {
	if !s.shutdownOnce.TryFire() {
		return
	}
	s.closed.Store(true)
	s.logger.Info("shutting down call session", zap.String("callID", s.callID))

	s.runStep("unsubscribe video", func() error {
		s.mu.Lock()
		src, had := s.subscribedMSI, s.hasSubscription
		s.hasSubscription = false
		s.targetID = ""
		s.mu.Unlock()
		if !had {
			return nil
		}
		return s.control.UnsubscribeVideo(src)
	})

	s.runStep("await player startup", func() error {
		select {
		case <-s.playerReady:
		case <-time.After(s.startupWait):
			s.logger.Warn("frame player startup did not finish in time",
				zap.Duration("waited", s.startupWait))
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	s.runStep("detach media handlers", func() error {
		s.media.Detach(s)
		return nil
	})

	if s.player != nil {
		s.runStep("shutdown frame player", func() error {
			return s.player.Shutdown(ctx)
		})
	}

	s.runStep("drain playback buffers", func() error {
		s.playbackMu.Lock()
		pending := s.playback
		s.playback = nil
		s.playbackMu.Unlock()
		for _, buf := range pending {
			releaseBuffer(buf, s.logger)
		}
		if len(pending) > 0 {
			s.logger.Debug("released queued playback buffers", zap.Int("count", len(pending)))
		}
		return nil
	})

	s.runStep("close relay channel", func() error {
		return s.channel.Close()
	})

	s.logger.Info("call session shut down", zap.String("callID", s.callID))
}

// runStep executes one teardown step, logging errors and containing panics
// so the remaining steps always run.
func (s *CallSession) runStep(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("shutdown step panicked",
				zap.String("step", name),
				zap.Any("panic", r),
			)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Error("shutdown step failed",
			zap.String("step", name),
			zap.Error(err),
		)
	}
}
