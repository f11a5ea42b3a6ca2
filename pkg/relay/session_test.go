package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewCallSessionValidation tests the required-collaborator checks
func TestNewCallSessionValidation(t *testing.T) {
	sink := newFakeSink()
	control := newFakeControl()
	media := newFakeMediaSession()

	_, err := NewCallSession(CallSessionOptions{Channel: sink, Control: control})
	assert.ErrorIs(t, err, ErrAudioSourceRequired)

	_, err = NewCallSession(CallSessionOptions{Control: control, Media: media})
	assert.ErrorIs(t, err, ErrChannelRequired)

	_, err = NewCallSession(CallSessionOptions{Channel: sink, Media: media})
	assert.ErrorIs(t, err, ErrCallControlRequired)
}

// TestNewCallSessionDefaults tests the generated session id and the
// handler attachment
func TestNewCallSessionDefaults(t *testing.T) {
	sink := newFakeSink()
	control := newFakeControl()
	media := newFakeMediaSession()

	s, err := NewCallSession(CallSessionOptions{
		Config:  SessionConfig{CallID: "call-1"},
		Channel: sink,
		Control: control,
		Media:   media,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, s.SessionID())
	assert.Equal(t, CallStateCreated, s.State())
	require.Len(t, media.attached, 1)
	assert.Same(t, s, media.attached[0].(*CallSession))
}

// TestSessionIDConfigured tests that an explicit session id is preserved
func TestSessionIDConfigured(t *testing.T) {
	s, _, _, _ := newTestSession(t, func(o *CallSessionOptions) {
		o.Config.SessionID = "fixed-id"
	})
	assert.Equal(t, "fixed-id", s.SessionID())
}

// TestParticipantsSnapshot tests the roster view exposed by the session
func TestParticipantsSnapshot(t *testing.T) {
	s, _, _, _ := newTestSession(t, nil)

	s.HandleParticipantAdded(Participant{ID: "p1", DisplayName: "Alice"})
	s.HandleParticipantAdded(Participant{ID: "p2", DisplayName: "Bob"})
	s.resolveWG.Wait()

	assert.Len(t, s.Participants(), 2)

	s.HandleParticipantRemoved(Participant{ID: "p1"})
	assert.Len(t, s.Participants(), 1)
}
