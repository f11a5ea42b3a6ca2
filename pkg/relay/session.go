package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// endedFlushDelay gives the "ended" frame time to flush before teardown
	// starts ripping the channel down.
	defaultEndedFlushDelay = 100 * time.Millisecond

	// startupWaitTimeout bounds how long shutdown waits for the frame
	// player startup task.
	defaultStartupWait = 2 * time.Second

	// identityLookupTimeout bounds directory lookups triggered from media
	// and roster callbacks so a slow directory cannot stall the platform's
	// callback threads indefinitely.
	identityLookupTimeout = 2 * time.Second
)

// SessionConfig carries the join request fields a CallSession needs. The
// HTTP front end that produces them is out of scope; they arrive here as
// plain constructor inputs.
type SessionConfig struct {
	// CallID is the platform's identifier for the accepted call.
	CallID string

	// SessionID identifies the session toward the external consumer.
	// Defaults to a random UUID.
	SessionID string

	// TargetEmail designates the principal participant whose video is
	// carried and whose audio classifies as RolePrimary.
	TargetEmail string

	// StartTime and EndTime are the scheduled session window in unix
	// seconds, when known ahead of the call.
	StartTime *int64
	EndTime   *int64

	// Agenda and Questions are auxiliary metadata announced to the
	// consumer at connect time.
	Agenda    []AgendaItem
	Questions []Question
}

// CallSessionOptions configures a CallSession.
type CallSessionOptions struct {
	Config SessionConfig

	// Channel is the relay channel the session owns. Required.
	Channel MessageSender

	// Control is the platform's roster and video-subscription surface.
	// Required.
	Control CallControl

	// Media is the platform's per-call media socket bundle. Required: a
	// session cannot function without at least the audio feed, so its
	// absence fails construction.
	Media MediaSession

	// Directory resolves participant identities. Optional; without it all
	// participants stay unresolved.
	Directory IdentityDirectory

	// Player is an optional local playback resource started in the
	// background and shut down during teardown.
	Player FramePlayer

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// CallSession owns the media relay pipeline for one accepted call: it is
// the CallEvents implementation the platform adapter drives, the owner of
// the single relay channel, and the state machine that picks the one video
// source to carry and guarantees the "ended" lifecycle event is delivered
// at most once before teardown.
type CallSession struct {
	callID    string
	cfg       SessionConfig
	createdAt time.Time
	logger    *zap.Logger

	channel   MessageSender
	control   CallControl
	media     MediaSession
	directory IdentityDirectory
	player    FramePlayer

	attribution *AttributionCache
	registry    *ParticipantRegistry

	mu              sync.Mutex
	state           CallState
	sessionStart    *int64 // unix seconds
	sessionEnd      *int64
	targetID        string
	subscribedMSI   uint32
	hasSubscription bool

	playbackMu sync.Mutex
	playback   []MediaBuffer

	playerReady chan struct{}
	resolveWG   sync.WaitGroup

	endedOnce    eventGuard
	shutdownOnce eventGuard
	closed       atomic.Bool

	// Overridable wait bounds; fixed defaults outside tests.
	endedFlushDelay time.Duration
	startupWait     time.Duration
}

// NewCallSession creates the session, wires the attribution cache, attaches
// the event handlers to the media session, and kicks off the optional frame
// player startup in the background.
func NewCallSession(opts CallSessionOptions) (*CallSession, error) {
	if opts.Media == nil {
		return nil, ErrAudioSourceRequired
	}
	if opts.Channel == nil {
		return nil, ErrChannelRequired
	}
	if opts.Control == nil {
		return nil, ErrCallControlRequired
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}

	s := &CallSession{
		callID:    cfg.CallID,
		cfg:       cfg,
		createdAt: time.Now(),
		logger:    logger,
		channel:   opts.Channel,
		control:   opts.Control,
		media:     opts.Media,
		directory: opts.Directory,
		player:    opts.Player,
		registry:  NewParticipantRegistry(),
		attribution: NewAttributionCache(AttributionCacheOptions{
			Participants: opts.Control,
			Directory:    opts.Directory,
			PrimaryEmail: cfg.TargetEmail,
			Logger:       logger,
		}),
		state:           CallStateCreated,
		sessionStart:    cfg.StartTime,
		sessionEnd:      cfg.EndTime,
		playerReady:     make(chan struct{}),
		endedFlushDelay: defaultEndedFlushDelay,
		startupWait:     defaultStartupWait,
	}

	if s.player != nil {
		go s.startPlayer()
	} else {
		close(s.playerReady)
	}

	s.media.Attach(s)
	logger.Info("call session created",
		zap.String("callID", s.callID),
		zap.String("sessionID", cfg.SessionID),
	)
	return s, nil
}

// startPlayer runs the frame player startup task. The ready channel closes
// whether startup succeeded or not, so shutdown's bounded wait always
// completes.
func (s *CallSession) startPlayer() {
	defer close(s.playerReady)
	if err := s.player.Start(context.Background()); err != nil {
		s.logger.Error("failed to start frame player",
			zap.String("callID", s.callID),
			zap.Error(err),
		)
	}
}

// State returns the current call lifecycle state.
func (s *CallSession) State() CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID returns the identifier announced to the external consumer.
func (s *CallSession) SessionID() string {
	return s.cfg.SessionID
}

// SubscribedVideoSource returns the currently subscribed video source id.
func (s *CallSession) SubscribedVideoSource() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribedMSI, s.hasSubscription
}

// TargetParticipant returns the id of the current video-subscription
// target, or empty when none has been chosen.
func (s *CallSession) TargetParticipant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetID
}

// Participants returns the session's view of the roster.
func (s *CallSession) Participants() []Participant {
	return s.registry.List()
}

// QueuePlaybackBuffer hands a platform buffer to the session for deferred
// disposal: playback integrations enqueue buffers here and the shutdown
// sequence drains and releases whatever is left. After shutdown has begun,
// buffers are released immediately instead of queued.
func (s *CallSession) QueuePlaybackBuffer(buf MediaBuffer) {
	if buf == nil {
		return
	}
	if s.closed.Load() {
		releaseBuffer(buf, s.logger)
		return
	}
	s.playbackMu.Lock()
	s.playback = append(s.playback, buf)
	s.playbackMu.Unlock()
}

// sessionStartOrFallback returns the recorded session start, or one hour
// before now when the call ended without the start ever being observed.
func (s *CallSession) sessionStartOrFallback(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionStart != nil {
		return *s.sessionStart
	}
	return now.Add(-time.Hour).Unix()
}
