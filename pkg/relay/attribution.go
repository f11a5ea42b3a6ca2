package relay

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// unresolvedDisplayName is used when a source id cannot be matched to any
// participant stream.
const unresolvedDisplayName = "Unknown"

// ParticipantLister provides a snapshot of the call's current roster.
// CallControl satisfies it.
type ParticipantLister interface {
	Participants() []Participant
}

// AttributionCacheOptions configures an AttributionCache.
type AttributionCacheOptions struct {
	// Participants supplies the roster scanned on a cache miss. Required.
	Participants ParticipantLister

	// Directory enriches a matched participant with email. Optional; when
	// nil, resolutions carry an empty email and classify as RoleUnknown.
	Directory IdentityDirectory

	// PrimaryEmail is the designated principal's email used for role
	// classification.
	PrimaryEmail string

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// AttributionCache maps ephemeral per-stream source ids to participant
// identity snapshots. Entries are memoized and append-only for the lifetime
// of a call: once a source id resolves, the costly path never runs again for
// it, even if the underlying participant's identity later changes. The cache
// assumes the platform does not reuse source ids across different
// participants within one call; if it ever does, cached attribution would
// misattribute audio.
type AttributionCache struct {
	mu           sync.Mutex
	entries      map[uint32]ParticipantInfo
	participants ParticipantLister
	directory    IdentityDirectory
	primaryEmail string
	logger       *zap.Logger
}

// NewAttributionCache creates an attribution cache for one call.
func NewAttributionCache(opts AttributionCacheOptions) *AttributionCache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttributionCache{
		entries:      make(map[uint32]ParticipantInfo),
		participants: opts.Participants,
		directory:    opts.Directory,
		primaryEmail: opts.PrimaryEmail,
		logger:       logger,
	}
}

// Resolve returns the identity snapshot for a source id. Cache hits return
// immediately with no I/O. On a miss the current roster is scanned for a
// non-lobby participant whose sending audio stream carries the source id;
// a match triggers a one-time directory lookup and the result is stored even
// when the lookup fails (empty email, degraded metadata). When no stream
// matches, an unresolved sentinel is returned without caching so the source
// stays eligible for resolution on a later call.
func (c *AttributionCache) Resolve(ctx context.Context, sourceID uint32) ParticipantInfo {
	c.mu.Lock()
	if info, ok := c.entries[sourceID]; ok {
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	participant, ok := c.findBySource(sourceID)
	if !ok {
		return ParticipantInfo{DisplayName: unresolvedDisplayName, Role: RoleUnknown}
	}

	info := ParticipantInfo{
		UserID:      participant.UserID,
		DisplayName: participant.DisplayName,
	}
	if info.DisplayName == "" {
		info.DisplayName = unresolvedDisplayName
	}

	// Directory lookup happens outside the lock: identity gaps are
	// non-fatal and streaming continues with degraded metadata.
	if c.directory != nil && participant.UserID != "" {
		details, err := c.directory.Lookup(ctx, participant.UserID)
		if err != nil {
			c.logger.Warn("identity lookup failed, continuing unresolved",
				zap.Uint32("sourceID", sourceID),
				zap.String("userID", participant.UserID),
				zap.Error(err),
			)
		} else {
			info.Email = details.Email
			if details.DisplayName != "" {
				info.DisplayName = details.DisplayName
			}
		}
	}
	info.Role = c.classify(info.Email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[sourceID]; ok {
		// Lost a resolution race; keep the first snapshot.
		return existing
	}
	c.entries[sourceID] = info

	c.logger.Info("resolved audio source",
		zap.Uint32("sourceID", sourceID),
		zap.String("displayName", info.DisplayName),
		zap.String("role", string(info.Role)),
	)
	return info
}

// Len returns the number of memoized entries.
func (c *AttributionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// classify derives the role from a resolved email. Unresolved emails
// classify as RoleUnknown; a case-insensitive match against the designated
// principal's email classifies as RolePrimary.
func (c *AttributionCache) classify(email string) Role {
	if email == "" {
		return RoleUnknown
	}
	if c.primaryEmail != "" && strings.EqualFold(email, c.primaryEmail) {
		return RolePrimary
	}
	return RoleOther
}

// findBySource scans the roster for an admitted participant whose sending
// audio stream carries the source id.
func (c *AttributionCache) findBySource(sourceID uint32) (Participant, bool) {
	if c.participants == nil {
		return Participant{}, false
	}
	for _, p := range c.participants.Participants() {
		if p.InLobby {
			continue
		}
		if src, ok := p.AudioSource(); ok && src == sourceID {
			return p, true
		}
	}
	return Participant{}, false
}
