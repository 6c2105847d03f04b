package core

import "sort"

// Presence is a read-only view over membership and registry.
type Presence struct {
	registry *Registry
	members  *Membership
}

// NewPresence builds the view.
func NewPresence(registry *Registry, members *Membership) *Presence {
	return &Presence{registry: registry, members: members}
}

// ActiveUsers returns the distinct identities joined to roomID, sorted.
// Anonymous connections are skipped.
func (p *Presence) ActiveUsers(roomID string) []string {
	seen := make(map[string]struct{})
	for _, connID := range p.members.MembersOf(roomID) {
		identity := p.registry.IdentityOf(connID)
		if identity == "" {
			continue
		}
		seen[identity] = struct{}{}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Has reports whether identity holds at least one connection in roomID.
func (p *Presence) Has(roomID, identity string) bool {
	for _, connID := range p.members.MembersOf(roomID) {
		if p.registry.IdentityOf(connID) == identity {
			return true
		}
	}
	return false
}

// diffUsers returns identities present only in after (joined) and only in before (left).
func diffUsers(before, after []string) (joined, left []string) {
	prev := make(map[string]struct{}, len(before))
	for _, u := range before {
		prev[u] = struct{}{}
	}
	for _, u := range after {
		if _, ok := prev[u]; ok {
			delete(prev, u)
			continue
		}
		joined = append(joined, u)
	}
	for _, u := range before {
		if _, ok := prev[u]; ok {
			left = append(left, u)
		}
	}
	return joined, left
}
