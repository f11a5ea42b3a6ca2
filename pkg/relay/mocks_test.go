package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// Test fakes for the session's collaborators. Relay-typed fakes live here
// rather than in internal/test/mocks because these tests run in the same
// package they exercise.

// fakeSink implements MessageSender and records everything sent.
type fakeSink struct {
	mu           sync.Mutex
	batches      [][]AudioChunk
	frames       []VideoFrame
	events       []lifecycleCall
	disconnected atomic.Bool
	closeCount   atomic.Int32
	sendErr      error
}

type lifecycleCall struct {
	eventType string
	startTime int64
	endTime   *int64
}

func newFakeSink() *fakeSink {
	return &fakeSink{}
}

func (f *fakeSink) SendAudioBatch(chunks []AudioChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.batches = append(f.batches, append([]AudioChunk(nil), chunks...))
	return nil
}

func (f *fakeSink) SendVideoFrame(frame VideoFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	frame.FrameIndex = int64(len(f.frames))
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeSink) SendLifecycleEvent(eventType string, startTime int64, endTime *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, lifecycleCall{eventType: eventType, startTime: startTime, endTime: endTime})
	return nil
}

func (f *fakeSink) Connected() bool {
	return !f.disconnected.Load()
}

func (f *fakeSink) Close() error {
	f.closeCount.Add(1)
	return nil
}

func (f *fakeSink) audioBatches() [][]AudioChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]AudioChunk(nil), f.batches...)
}

func (f *fakeSink) videoFrames() []VideoFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VideoFrame(nil), f.frames...)
}

func (f *fakeSink) lifecycleEvents() []lifecycleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lifecycleCall(nil), f.events...)
}

// fakeControl implements CallControl with a mutable roster and records
// subscription calls in order.
type fakeControl struct {
	mu             sync.Mutex
	roster         []Participant
	subscribeCalls []uint32
	unsubCalls     []uint32
	subscribeErr   error
}

func newFakeControl(roster ...Participant) *fakeControl {
	return &fakeControl{roster: roster}
}

func (f *fakeControl) Participants() []Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Participant(nil), f.roster...)
}

func (f *fakeControl) SubscribeVideo(sourceID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribeCalls = append(f.subscribeCalls, sourceID)
	return nil
}

func (f *fakeControl) UnsubscribeVideo(sourceID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubCalls = append(f.unsubCalls, sourceID)
	return nil
}

func (f *fakeControl) setRoster(roster ...Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster = roster
}

func (f *fakeControl) subscribed() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.subscribeCalls...)
}

func (f *fakeControl) unsubscribed() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.unsubCalls...)
}

// fakeDirectory implements IdentityDirectory backed by a static map and
// counts lookups per user id.
type fakeDirectory struct {
	mu      sync.Mutex
	users   map[string]UserDetails
	lookups map[string]int
	err     error
}

func newFakeDirectory(users ...UserDetails) *fakeDirectory {
	d := &fakeDirectory{
		users:   make(map[string]UserDetails),
		lookups: make(map[string]int),
	}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (f *fakeDirectory) Lookup(_ context.Context, userID string) (UserDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[userID]++
	if f.err != nil {
		return UserDetails{}, f.err
	}
	details, ok := f.users[userID]
	if !ok {
		return UserDetails{}, ErrIdentityNotFound
	}
	return details, nil
}

func (f *fakeDirectory) lookupCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[userID]
}

// fakeMediaSession implements MediaSession and records attach/detach calls.
type fakeMediaSession struct {
	mu       sync.Mutex
	attached []CallEvents
	detached []CallEvents
}

func newFakeMediaSession() *fakeMediaSession {
	return &fakeMediaSession{}
}

func (f *fakeMediaSession) Attach(events CallEvents) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, events)
}

func (f *fakeMediaSession) Detach(events CallEvents) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = append(f.detached, events)
}

func (f *fakeMediaSession) detachCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detached)
}

// fakePlayer implements FramePlayer with configurable delays and errors.
type fakePlayer struct {
	startCount    atomic.Int32
	shutdownCount atomic.Int32
	startErr      error
	shutdownErr   error
	startGate     chan struct{}
}

func newFakePlayer() *fakePlayer {
	return &fakePlayer{}
}

func (f *fakePlayer) Start(ctx context.Context) error {
	if f.startGate != nil {
		select {
		case <-f.startGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.startCount.Add(1)
	return f.startErr
}

func (f *fakePlayer) Shutdown(context.Context) error {
	f.shutdownCount.Add(1)
	return f.shutdownErr
}

// newTestSession builds a session with sensible fakes, letting a test
// replace any collaborator through the options before construction.
func newTestSession(t *testing.T, mutate func(*CallSessionOptions)) (*CallSession, *fakeSink, *fakeControl, *fakeMediaSession) {
	sink := newFakeSink()
	control := newFakeControl()
	media := newFakeMediaSession()

	opts := CallSessionOptions{
		Config: SessionConfig{
			CallID:      "call-1",
			TargetEmail: "owner@example.com",
		},
		Channel: sink,
		Control: control,
		Media:   media,
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := NewCallSession(opts)
	if err != nil {
		t.Fatalf("NewCallSession: %v", err)
	}
	s.endedFlushDelay = 0
	return s, sink, control, media
}
