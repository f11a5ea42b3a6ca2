package relay

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// HandleCallStateChanged advances the call state machine. The first
// established notification records the session start time when none was
// configured. The first terminated notification wins the ended-event guard,
// delivers the single "ended" lifecycle event, waits a short flush grace,
// and then initiates the full shutdown; later notifications and concurrent
// disposal calls are no-ops.
func (s *CallSession) HandleCallStateChanged(state CallState) {
	s.logger.Info("call state changed",
		zap.String("callID", s.callID),
		zap.String("state", state.String()),
	)

	switch state {
	case CallStateEstablished:
		s.mu.Lock()
		if s.state == CallStateCreated {
			s.state = CallStateEstablished
			if s.sessionStart == nil {
				now := time.Now().Unix()
				s.sessionStart = &now
			}
		}
		s.mu.Unlock()

	case CallStateTerminated:
		s.mu.Lock()
		s.state = CallStateTerminated
		s.mu.Unlock()
		s.terminate()
	}
}

// terminate performs the exactly-once ended-event send followed by
// shutdown. Only the caller winning the guard proceeds.
func (s *CallSession) terminate() {
	if !s.endedOnce.TryFire() {
		s.logger.Debug("ended event already sent, skipping", zap.String("callID", s.callID))
		return
	}

	now := time.Now()
	start := s.sessionStartOrFallback(now)
	end := now.Unix()
	if err := s.channel.SendLifecycleEvent(LifecycleEnded, start, &end); err != nil {
		s.logger.Error("failed to send ended event",
			zap.String("callID", s.callID),
			zap.Error(err),
		)
	}

	// Bounded grace so the frame can flush before teardown.
	time.Sleep(s.endedFlushDelay)
	s.Shutdown(context.Background())
}

// HandleParticipantAdded registers the participant and dispatches identity
// resolution to a background task; the platform's callback thread is never
// blocked on the directory. A participant becomes the video-subscription
// target when resolution classifies them as the designated principal, or
// when no identity can be resolved at all and no target has been chosen
// yet.
func (s *CallSession) HandleParticipantAdded(p Participant) {
	s.registry.Add(p)
	s.logger.Info("participant added",
		zap.String("callID", s.callID),
		zap.String("participantID", p.ID),
		zap.String("displayName", p.DisplayName),
		zap.Bool("inLobby", p.InLobby),
	)

	if s.closed.Load() {
		return
	}
	s.resolveWG.Add(1)
	go func() {
		defer s.resolveWG.Done()
		s.classifyAndTarget(p)
	}()
}

// classifyAndTarget resolves the participant's identity and applies the
// target-selection rules. Runs off the platform callback thread.
func (s *CallSession) classifyAndTarget(p Participant) {
	details, resolved := s.resolveDetails(p)

	isTarget := false
	takeover := false
	switch {
	case resolved && s.cfg.TargetEmail != "" && strings.EqualFold(details.Email, s.cfg.TargetEmail):
		// The designated principal always claims the slot.
		isTarget = true
		takeover = true
	case !resolved:
		// Unresolvable identity (guest/external): likely target when none
		// has been found yet.
		isTarget = true
	}
	if !isTarget || s.closed.Load() {
		return
	}

	s.mu.Lock()
	if s.targetID != "" && s.targetID != p.ID && !takeover {
		s.mu.Unlock()
		return
	}
	s.targetID = p.ID
	s.mu.Unlock()

	s.logger.Info("video subscription target chosen",
		zap.String("callID", s.callID),
		zap.String("participantID", p.ID),
		zap.Bool("resolved", resolved),
	)

	if src, ok := p.VideoSource(); ok {
		s.subscribeVideo(src)
	} else {
		s.logger.Info("target has no video stream yet, waiting for update",
			zap.String("participantID", p.ID))
	}
}

// resolveDetails performs the one-time directory lookup for a roster
// participant and records the result. A missing user id, a missing
// directory, or any lookup failure all count as unresolved.
func (s *CallSession) resolveDetails(p Participant) (UserDetails, bool) {
	if p.UserID == "" || s.directory == nil {
		return UserDetails{}, false
	}
	if details, ok := s.registry.Details(p.UserID); ok {
		return details, true
	}

	ctx, cancel := context.WithTimeout(context.Background(), identityLookupTimeout)
	defer cancel()
	details, err := s.directory.Lookup(ctx, p.UserID)
	if err != nil {
		s.logger.Warn("identity lookup failed for participant",
			zap.String("callID", s.callID),
			zap.String("participantID", p.ID),
			zap.String("userID", p.UserID),
			zap.Error(err),
		)
		return UserDetails{}, false
	}
	s.registry.SetDetails(p.UserID, details)
	return details, true
}

// HandleParticipantUpdated refreshes the roster record and, when the
// updated participant is the subscription target, re-subscribes if their
// video stream newly appeared or moved to a different source id. This path
// is cache-only: candidate selection here never performs a directory
// lookup.
func (s *CallSession) HandleParticipantUpdated(old, updated Participant) {
	s.registry.Update(updated)

	s.mu.Lock()
	target := s.targetID
	s.mu.Unlock()

	if target == "" {
		// No target yet: a participant whose identity is not in the
		// resolved-details cache is the likely principal.
		if _, known := s.registry.Details(updated.UserID); !known {
			s.mu.Lock()
			if s.targetID == "" {
				s.targetID = updated.ID
			}
			target = s.targetID
			s.mu.Unlock()
		}
	}
	if updated.ID != target {
		return
	}

	newSrc, ok := updated.VideoSource()
	if !ok {
		return
	}
	oldSrc, hadOld := old.VideoSource()

	s.mu.Lock()
	current, subscribed := s.subscribedMSI, s.hasSubscription
	s.mu.Unlock()

	if subscribed && current == newSrc {
		return
	}
	if !hadOld || oldSrc != newSrc || !subscribed {
		s.logger.Info("target video stream changed, re-subscribing",
			zap.String("participantID", updated.ID),
			zap.Uint32("sourceID", newSrc),
		)
		s.subscribeVideo(newSrc)
	}
}

// HandleParticipantRemoved drops the roster record. When the removed
// participant was the subscription target, the target is cleared so a
// future qualifying participant can be chosen; no re-subscription search
// runs until another update arrives.
func (s *CallSession) HandleParticipantRemoved(p Participant) {
	s.registry.Remove(p.ID)
	s.logger.Info("participant removed",
		zap.String("callID", s.callID),
		zap.String("participantID", p.ID),
	)

	s.mu.Lock()
	if s.targetID == p.ID {
		s.targetID = ""
		s.logger.Info("video subscription target left the call",
			zap.String("participantID", p.ID))
	}
	s.mu.Unlock()
}

// subscribeVideo points the call's single video slot at a source id,
// unsubscribing any existing source first. The all-ones sentinel is
// rejected without touching the platform. The lock is never held across
// the platform calls.
func (s *CallSession) subscribeVideo(sourceID uint32) {
	if sourceID == InvalidVideoSourceID {
		s.logger.Warn("ignoring invalid video source id, skipping subscription",
			zap.String("callID", s.callID))
		return
	}
	if s.closed.Load() {
		return
	}

	s.mu.Lock()
	if s.hasSubscription && s.subscribedMSI == sourceID {
		s.mu.Unlock()
		return
	}
	prev, had := s.subscribedMSI, s.hasSubscription
	s.mu.Unlock()

	if had {
		if err := s.control.UnsubscribeVideo(prev); err != nil {
			s.logger.Error("failed to unsubscribe previous video source",
				zap.Uint32("sourceID", prev),
				zap.Error(err),
			)
		}
	}
	if err := s.control.SubscribeVideo(sourceID); err != nil {
		s.logger.Error("failed to subscribe video source",
			zap.Uint32("sourceID", sourceID),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	s.subscribedMSI = sourceID
	s.hasSubscription = true
	s.mu.Unlock()

	s.logger.Info("subscribed to video source",
		zap.String("callID", s.callID),
		zap.Uint32("sourceID", sourceID),
	)
}
