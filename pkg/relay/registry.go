package relay

import "sync"

// ParticipantRegistry is a CallSession's own view of the roster, fed by the
// platform's participant-added/updated/removed notifications. Identity
// details resolved through the directory are kept in a separate append-only
// map so the update path can consult them without network I/O. Both maps are
// scoped to the session's lifetime and destroyed with it.
type ParticipantRegistry struct {
	mu           sync.RWMutex
	participants map[string]Participant
	details      map[string]UserDetails
}

// NewParticipantRegistry creates an empty registry.
func NewParticipantRegistry() *ParticipantRegistry {
	return &ParticipantRegistry{
		participants: make(map[string]Participant),
		details:      make(map[string]UserDetails),
	}
}

// Add registers a participant on its first "added" notification.
func (r *ParticipantRegistry) Add(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// Update replaces a participant's record on an "updated" notification.
func (r *ParticipantRegistry) Update(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// Remove drops a participant on a "removed" notification. Resolved identity
// details are retained; they are keyed by user id and stay valid for
// attribution snapshots already taken.
func (r *ParticipantRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, id)
}

// Get returns a participant by id.
func (r *ParticipantRegistry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// List returns a snapshot of all tracked participants.
func (r *ParticipantRegistry) List() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// Len returns the number of tracked participants.
func (r *ParticipantRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// SetDetails stores resolved identity details for a user id.
func (r *ParticipantRegistry) SetDetails(userID string, details UserDetails) {
	if userID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.details[userID] = details
}

// Details returns resolved identity details for a user id.
func (r *ParticipantRegistry) Details(userID string) (UserDetails, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.details[userID]
	return d, ok
}
