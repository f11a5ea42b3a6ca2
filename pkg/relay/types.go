// Package relay implements the media relay and participant-attribution
// pipeline for a hosted conference call. A CallSession receives per-speaker
// audio buffers and full-frame video buffers from the call platform's media
// sockets, attributes each audio segment to a human participant, normalizes
// sender timestamps onto a wall-clock timeline, and forwards batched media
// over a single authenticated websocket channel to an external consumer.
//
// Key pieces:
//   - RelayChannel: the persistent duplex connection (connect/auth handshake,
//     outbound framing, inbound drain loop, disconnect notification)
//   - AttributionCache: memoized source-id to participant identity resolution
//   - CallSession: the call/participant lifecycle state machine, video
//     subscription target selection, and ordered idempotent shutdown
//
// The call platform and the identity directory are external collaborators
// and are only modelled at their interface boundary (see platform.go).
package relay

import "time"

// Role classifies a participant relative to the session's designated
// principal. It is derived by comparing the participant's resolved email
// against the configured target email; participants without a resolved
// identity classify as RoleUnknown.
type Role string

const (
	RolePrimary Role = "primary"
	RoleOther   Role = "other"
	RoleUnknown Role = "unknown"
)

// ParticipantInfo is the attribution snapshot captured when a media source id
// first resolves to a participant. Once cached it is never re-resolved for
// the life of the call, even if the underlying participant's identity later
// changes.
type ParticipantInfo struct {
	UserID      string
	DisplayName string
	Email       string
	Role        Role
}

// AudioChunk is one 20 ms per-speaker audio frame with its attribution and
// normalized speak window. Chunks are transient: created in the ingest
// callback, serialized into one outbound batch, then discarded.
type AudioChunk struct {
	Buffer       []byte
	Email        string
	DisplayName  string
	Role         Role
	SpeakStartMs int64
	SpeakEndMs   int64
}

// VideoFormat describes a video stream's negotiated parameters.
type VideoFormat struct {
	Width     int
	Height    int
	FrameRate float64
}

// VideoFrame is one captured frame from the single subscribed video source.
// FrameIndex is assigned by the relay channel and increases monotonically
// for the channel's lifetime.
type VideoFrame struct {
	Buffer         []byte
	Format         VideoFormat
	OriginalFormat *VideoFormat
	Timestamp      time.Time
	FrameIndex     int64
}

// AgendaItem is an auxiliary session metadata entry carried in the
// session-announce message.
type AgendaItem struct {
	Index       int
	Title       string
	Description string
	Assignee    string
}

// Question is one entry of the structured question set carried in the
// session-announce message.
type Question struct {
	Index int
	Text  string
	Mark  bool
}

// SessionInfo is the announce payload sent once right after the channel
// connects, before any media is relayed. Start and end times are unix
// seconds and may be unknown at connect time.
type SessionInfo struct {
	SessionID string
	StartTime *int64
	EndTime   *int64
	Agenda    []AgendaItem
	Questions []Question
}

// CallState tracks the call lifecycle as reported by the platform.
type CallState int32

const (
	CallStateCreated CallState = iota
	CallStateEstablished
	CallStateTerminated
)

// String returns a human-readable call state name.
func (s CallState) String() string {
	switch s {
	case CallStateCreated:
		return "created"
	case CallStateEstablished:
		return "established"
	case CallStateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ChannelState tracks the relay channel connection state.
type ChannelState int32

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
)

// String returns a human-readable channel state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelDisconnected:
		return "disconnected"
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Lifecycle event types understood by the external consumer.
const (
	LifecycleStarted = "started"
	LifecycleEnded   = "ended"
)

// InvalidVideoSourceID is the platform's sentinel for "no addressable video
// stream". Subscription attempts against it are rejected without calling
// the platform.
const InvalidVideoSourceID uint32 = 0xFFFFFFFF

// Error represents a relay error with a machine-readable code.
type Error struct {
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

var (
	// ErrNotConnected indicates a send was attempted while the relay channel
	// is not connected.
	ErrNotConnected = &Error{Code: "NOT_CONNECTED", Message: "relay channel is not connected"}

	// ErrConnectionFailed indicates a failure to establish the relay channel.
	ErrConnectionFailed = &Error{Code: "CONNECTION_FAILED", Message: "failed to connect relay channel"}

	// ErrChannelDisposed indicates the relay channel has been disposed and
	// cannot be reused.
	ErrChannelDisposed = &Error{Code: "CHANNEL_DISPOSED", Message: "relay channel is disposed"}

	// ErrAlreadyConnected indicates Connect was called while a connection
	// attempt is in flight or established.
	ErrAlreadyConnected = &Error{Code: "ALREADY_CONNECTED", Message: "relay channel is already connected"}

	// ErrAudioSourceRequired indicates a session was constructed without the
	// platform media session that delivers audio. The session cannot
	// function at all without it, so construction fails immediately.
	ErrAudioSourceRequired = &Error{Code: "AUDIO_SOURCE_REQUIRED", Message: "a media session needs at least an audio source"}

	// ErrChannelRequired indicates a session was constructed without a relay
	// channel.
	ErrChannelRequired = &Error{Code: "CHANNEL_REQUIRED", Message: "a session needs a relay channel"}

	// ErrCallControlRequired indicates a session was constructed without the
	// platform call control surface.
	ErrCallControlRequired = &Error{Code: "CALL_CONTROL_REQUIRED", Message: "a session needs the platform call control"}

	// ErrIdentityNotFound indicates the identity directory has no record for
	// the requested user id. Callers treat this as "unresolved", not fatal.
	ErrIdentityNotFound = &Error{Code: "IDENTITY_NOT_FOUND", Message: "identity not found in directory"}
)
