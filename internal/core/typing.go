package core

import (
	"sort"
	"time"
)

// DefaultTypingTimeout is how long a typing mark survives without refresh.
const DefaultTypingTimeout = time.Second

type typingKey struct {
	room string
	user string
}

type typingEntry struct {
	timer *time.Timer
	gen   uint64
}

// Typing holds per (room, user) typing state. Each active key owns exactly
// one timer; expiry is reported through fire with the generation that armed
// it, and Expire ignores generations that were replaced or stopped since.
type Typing struct {
	timeout time.Duration
	fire    func(key typingKey, gen uint64)
	rooms   map[string]map[string]*typingEntry
	gen     uint64
}

func newTyping(timeout time.Duration, fire func(typingKey, uint64)) *Typing {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &Typing{
		timeout: timeout,
		fire:    fire,
		rooms:   make(map[string]map[string]*typingEntry),
	}
}

// Start marks user as typing in room and (re)arms the expiry timer.
// Returns true on the Idle -> Typing transition.
func (t *Typing) Start(room, user string) bool {
	key := typingKey{room: room, user: user}
	t.gen++
	gen := t.gen

	users, ok := t.rooms[room]
	if !ok {
		users = make(map[string]*typingEntry)
		t.rooms[room] = users
	}
	entry, active := users[user]
	if active {
		entry.timer.Stop()
	} else {
		entry = &typingEntry{}
		users[user] = entry
	}
	entry.gen = gen
	entry.timer = time.AfterFunc(t.timeout, func() { t.fire(key, gen) })
	return !active
}

// Stop clears the typing mark. Returns true on the Typing -> Idle transition.
func (t *Typing) Stop(room, user string) bool {
	entry, ok := t.rooms[room][user]
	if !ok {
		return false
	}
	entry.timer.Stop()
	t.remove(room, user)
	return true
}

// Expire handles a timer firing. Returns true if the timer was still the
// current one for its key, meaning the key transitioned to Idle.
func (t *Typing) Expire(key typingKey, gen uint64) bool {
	entry, ok := t.rooms[key.room][key.user]
	if !ok || entry.gen != gen {
		return false
	}
	t.remove(key.room, key.user)
	return true
}

// Users returns who is typing in room, sorted.
func (t *Typing) Users(room string) []string {
	users := t.rooms[room]
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// IsTyping reports the current state of a key.
func (t *Typing) IsTyping(room, user string) bool {
	_, ok := t.rooms[room][user]
	return ok
}

// StopAll cancels every timer without reporting transitions.
func (t *Typing) StopAll() {
	for _, users := range t.rooms {
		for _, entry := range users {
			entry.timer.Stop()
		}
	}
	t.rooms = make(map[string]map[string]*typingEntry)
}

func (t *Typing) remove(room, user string) {
	users := t.rooms[room]
	delete(users, user)
	if len(users) == 0 {
		delete(t.rooms, room)
	}
}
