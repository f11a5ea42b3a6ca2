package relay

import "context"

// This file defines the boundary to the two external collaborators: the
// conferencing platform (media sockets, call control, roster notifications)
// and the identity directory. The platform invokes the CallEvents callbacks
// on its own threads, potentially concurrently across callback kinds but
// serially within one kind for a given call.

// MediaBuffer is a platform-owned native media buffer. Bytes is only valid
// until Release is called, and the platform only guarantees validity for the
// duration of the delivering callback, so handlers must copy the payload out
// immediately. Release must be called exactly once on every exit path.
type MediaBuffer interface {
	Bytes() []byte
	Release()
}

// UnmixedAudioBuffer is one per-speaker sub-buffer inside an audio event.
// SenderTimestamp is the platform's raw sender clock value: either 100 ns
// ticks since 1601-01-01 or a small/zero value the normalizer cannot
// interpret as absolute.
type UnmixedAudioBuffer struct {
	Buffer          MediaBuffer
	SourceID        uint32
	SenderTimestamp int64
}

// AudioEvent bundles zero or more per-speaker sub-buffers delivered by the
// platform's audio socket in a single callback.
type AudioEvent struct {
	Buffers []UnmixedAudioBuffer
}

// VideoEvent is one full frame delivered on the single subscribed video
// source.
type VideoEvent struct {
	Buffer         MediaBuffer
	SourceID       uint32
	Format         VideoFormat
	OriginalFormat *VideoFormat
}

// MediaKind distinguishes a participant's stream modalities.
type MediaKind int

const (
	MediaKindAudio MediaKind = iota
	MediaKindVideo
)

// StreamDirection is the platform-reported direction of a media stream.
type StreamDirection int

const (
	DirectionInactive StreamDirection = iota
	DirectionSendOnly
	DirectionReceiveOnly
	DirectionSendReceive
)

// Sending reports whether media flows from the participant toward the call.
func (d StreamDirection) Sending() bool {
	return d == DirectionSendOnly || d == DirectionSendReceive
}

// MediaStreamInfo describes one of a participant's active media streams.
// SourceID is the stream-level identifier used for attribution and video
// subscription; it is distinct from the participant id.
type MediaStreamInfo struct {
	Kind      MediaKind
	SourceID  uint32
	Direction StreamDirection
}

// Participant is the platform's view of a call participant. ID is stable for
// the life of the call. UserID is the directory identity and is empty for
// guests and anonymous participants. Streams lists the currently advertised
// media streams.
type Participant struct {
	ID          string
	UserID      string
	DisplayName string
	InLobby     bool
	Streams     []MediaStreamInfo
}

// AudioSource returns the source id of the participant's sending audio
// stream, if any.
func (p Participant) AudioSource() (uint32, bool) {
	for _, s := range p.Streams {
		if s.Kind == MediaKindAudio && s.Direction.Sending() {
			return s.SourceID, true
		}
	}
	return 0, false
}

// VideoSource returns the source id of the participant's sending video
// stream, if any.
func (p Participant) VideoSource() (uint32, bool) {
	for _, s := range p.Streams {
		if s.Kind == MediaKindVideo && s.Direction.Sending() {
			return s.SourceID, true
		}
	}
	return 0, false
}

// CallControl is the platform surface for roster queries and video
// subscription. The video channel is a single-slot resource: only one
// source id is carried at a time.
type CallControl interface {
	// Participants returns a snapshot of the call's current roster.
	Participants() []Participant

	// SubscribeVideo addresses the call's video channel at the given source.
	SubscribeVideo(sourceID uint32) error

	// UnsubscribeVideo releases the video channel's current source.
	UnsubscribeVideo(sourceID uint32) error
}

// CallEvents is the callback surface a CallSession exposes to the platform
// adapter. Implementations must tolerate concurrent invocation across
// different callback kinds.
type CallEvents interface {
	HandleAudioMedia(event AudioEvent)
	HandleVideoMedia(event VideoEvent)
	HandleCallStateChanged(state CallState)
	HandleParticipantAdded(participant Participant)
	HandleParticipantUpdated(old, updated Participant)
	HandleParticipantRemoved(participant Participant)
}

// MediaSession is the platform's per-call media socket bundle. Handlers are
// registered at session construction and deregistered during the shutdown
// sequence; there is no ambient event bus.
type MediaSession interface {
	Attach(events CallEvents)
	Detach(events CallEvents)
}

// UserDetails is an identity directory record.
type UserDetails struct {
	ID          string
	DisplayName string
	Email       string
}

// IdentityDirectory resolves a platform user id to directory identity
// metadata. Lookups may fail transiently; callers treat any failure as
// "unresolved" and continue with degraded metadata.
type IdentityDirectory interface {
	Lookup(ctx context.Context, userID string) (UserDetails, error)
}

// FramePlayer is an optional local playback resource (for example a
// loopback audio/video frame player). Start is invoked once in the
// background at session construction; Shutdown is invoked during the
// ordered teardown after the startup task completed or timed out.
type FramePlayer interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
