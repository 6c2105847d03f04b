package core

import (
	"fmt"
	"strings"
)

// Registry tracks live connections and the identity each is bound to.
// One identity may hold several connections; a connection holds at most one identity.
type Registry struct {
	clients    map[string]*Client
	byIdentity map[string]map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:    make(map[string]*Client),
		byIdentity: make(map[string]map[string]*Client),
	}
}

// Add tracks a new anonymous connection. Returns false if the id is taken.
func (r *Registry) Add(c *Client) bool {
	if _, exists := r.clients[c.ID]; exists {
		return false
	}
	r.clients[c.ID] = c
	return true
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (*Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Authenticate binds identity to the connection. Binding the same identity
// again is a no-op; binding a different one is rejected.
func (r *Registry) Authenticate(id, identity string) error {
	identity = strings.TrimSpace(identity)
	if err := ValidateIdentity(identity); err != nil {
		return err
	}

	c, ok := r.clients[id]
	if !ok {
		return ErrUnknownConnection
	}
	if c.identity == identity {
		return nil
	}
	if c.identity != "" {
		return fmt.Errorf("connection already bound to %q: %w", c.identity, ErrIdentityMismatch)
	}

	c.identity = identity
	conns, ok := r.byIdentity[identity]
	if !ok {
		conns = make(map[string]*Client)
		r.byIdentity[identity] = conns
	}
	conns[id] = c
	return nil
}

// IdentityOf returns the identity bound to a connection, or "" when anonymous or unknown.
func (r *Registry) IdentityOf(id string) string {
	if c, ok := r.clients[id]; ok {
		return c.identity
	}
	return ""
}

// ConnectionsOf lists the live connections bound to identity.
func (r *Registry) ConnectionsOf(identity string) []*Client {
	conns := r.byIdentity[identity]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Remove forgets the connection. The caller is responsible for membership cleanup.
func (r *Registry) Remove(id string) (*Client, bool) {
	c, ok := r.clients[id]
	if !ok {
		return nil, false
	}
	delete(r.clients, id)
	if c.identity != "" {
		if conns, ok := r.byIdentity[c.identity]; ok {
			delete(conns, id)
			if len(conns) == 0 {
				delete(r.byIdentity, c.identity)
			}
		}
	}
	return c, true
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	return len(r.clients)
}

// ValidateIdentity rejects empty identities and ones that would make direct
// room ids ambiguous.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return ErrInvalidIdentity
	}
	if strings.Contains(identity, ":") {
		return fmt.Errorf("identity %q contains ':': %w", identity, ErrInvalidIdentity)
	}
	return nil
}
