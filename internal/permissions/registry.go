package permissions

import (
	"sync"
	"time"
)

// Member identifies the membership a session was opened for.
type Member struct {
	OrgID  int64
	UserID int64
}

type session struct {
	resolver *Resolver
	member   Member
	expires  time.Time
}

// Registry tracks the Resolver of every open session, indexed by session id
// and by membership. It lives in process memory only: after a restart every
// session has to be opened again.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]session
	byMember map[Member]map[string]struct{}
	now      func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]session),
		byMember: make(map[Member]map[string]struct{}),
		now:      time.Now,
	}
}

// Open creates a fresh Resolver for sid, replacing any previous one. A zero
// expires never expires.
func (g *Registry) Open(sid string, m Member, expires time.Time) *Resolver {
	r := NewResolver()

	g.mu.Lock()
	if prev, ok := g.remove(sid); ok {
		prev.resolver.Reset()
	}
	g.sessions[sid] = session{resolver: r, member: m, expires: expires}
	if g.byMember[m] == nil {
		g.byMember[m] = make(map[string]struct{})
	}
	g.byMember[m][sid] = struct{}{}
	g.mu.Unlock()

	return r
}

// Get returns the Resolver of an open, unexpired session.
func (g *Registry) Get(sid string) (*Resolver, bool) {
	g.mu.RLock()
	s, ok := g.sessions[sid]
	g.mu.RUnlock()

	if !ok || s.expired(g.now()) {
		return nil, false
	}
	return s.resolver, true
}

// Close resets and forgets the Resolver of sid. Closing an unknown session
// is a no-op.
func (g *Registry) Close(sid string) {
	g.mu.Lock()
	s, ok := g.remove(sid)
	g.mu.Unlock()

	if ok {
		s.resolver.Reset()
	}
}

// MemberResolvers returns the Resolvers of every open, unexpired session of m.
func (g *Registry) MemberResolvers(m Member) []*Resolver {
	now := g.now()

	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*Resolver
	for sid := range g.byMember[m] {
		if s := g.sessions[sid]; !s.expired(now) {
			out = append(out, s.resolver)
		}
	}
	return out
}

// CloseMember closes every session of m and returns how many were closed.
func (g *Registry) CloseMember(m Member) int {
	g.mu.Lock()
	var closed []*Resolver
	for sid := range g.byMember[m] {
		if s, ok := g.remove(sid); ok {
			closed = append(closed, s.resolver)
		}
	}
	g.mu.Unlock()

	for _, r := range closed {
		r.Reset()
	}
	return len(closed)
}

// Sweep closes every expired session and returns how many were removed.
func (g *Registry) Sweep() int {
	now := g.now()

	g.mu.Lock()
	var expired []*Resolver
	for sid, s := range g.sessions {
		if s.expired(now) {
			g.remove(sid)
			expired = append(expired, s.resolver)
		}
	}
	g.mu.Unlock()

	for _, r := range expired {
		r.Reset()
	}
	return len(expired)
}

// Len returns the number of tracked sessions, expired ones included until
// the next Sweep.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// remove drops sid from both indexes. g.mu must be held for writing.
func (g *Registry) remove(sid string) (session, bool) {
	s, ok := g.sessions[sid]
	if !ok {
		return session{}, false
	}
	delete(g.sessions, sid)
	if sids := g.byMember[s.member]; sids != nil {
		delete(sids, sid)
		if len(sids) == 0 {
			delete(g.byMember, s.member)
		}
	}
	return s, true
}

func (s session) expired(now time.Time) bool {
	return !s.expires.IsZero() && !now.Before(s.expires)
}
