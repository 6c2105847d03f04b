package core

import (
	"sort"
	"strings"
)

const directRoomPrefix = "dm:"

// DirectRoomID derives the pair room for two users. The result does not
// depend on argument order.
func DirectRoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return directRoomPrefix + userA + ":" + userB
}

// IsDirectRoom reports whether roomID was produced by DirectRoomID.
func IsDirectRoom(roomID string) bool {
	return strings.HasPrefix(roomID, directRoomPrefix)
}

// Membership maps room ids to the connections currently joined.
// Named rooms are pruned when they empty; direct rooms are kept.
type Membership struct {
	rooms map[string]map[string]struct{}
}

// NewMembership returns an empty membership table.
func NewMembership() *Membership {
	return &Membership{rooms: make(map[string]map[string]struct{})}
}

// Join adds connID to roomID, creating the room lazily. Returns true if newly added.
func (m *Membership) Join(roomID, connID string) bool {
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		m.rooms[roomID] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}
	return true
}

// Leave removes connID from roomID. Returns true if it was a member.
func (m *Membership) Leave(roomID, connID string) bool {
	members, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 && !IsDirectRoom(roomID) {
		delete(m.rooms, roomID)
	}
	return true
}

// MembersOf returns the sorted connection ids of a room; empty for unknown rooms.
func (m *Membership) MembersOf(roomID string) []string {
	members := m.rooms[roomID]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Known reports whether the table holds an entry for roomID, even an empty one.
func (m *Membership) Known(roomID string) bool {
	_, ok := m.rooms[roomID]
	return ok
}

// Len returns the number of room entries.
func (m *Membership) Len() int {
	return len(m.rooms)
}
