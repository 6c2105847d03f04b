package core

import (
	"errors"
	"testing"
)

func TestRegistryAuthenticate(t *testing.T) {
	r := NewRegistry()
	c := NewClient("c1", 1)
	if !r.Add(c) {
		t.Fatalf("expected add to succeed")
	}
	if r.Add(NewClient("c1", 1)) {
		t.Fatalf("expected duplicate id to be rejected")
	}

	if err := r.Authenticate("c1", ""); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
	if got := r.IdentityOf("c1"); got != "" {
		t.Fatalf("connection should stay anonymous, got %q", got)
	}

	if err := r.Authenticate("c1", "alice"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := r.Authenticate("c1", "alice"); err != nil {
		t.Fatalf("re-authenticating with the same identity should be a no-op, got %v", err)
	}
	if err := r.Authenticate("c1", "bob"); !errors.Is(err, ErrIdentityMismatch) {
		t.Fatalf("expected ErrIdentityMismatch, got %v", err)
	}
	if err := r.Authenticate("ghost", "alice"); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
	if err := r.Authenticate("c1", "a:b"); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ':' to be rejected, got %v", err)
	}
}

func TestRegistryMultipleConnectionsPerIdentity(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"t1", "t2"} {
		r.Add(NewClient(id, 1))
		if err := r.Authenticate(id, "alice"); err != nil {
			t.Fatalf("authenticate %s: %v", id, err)
		}
	}

	if n := len(r.ConnectionsOf("alice")); n != 2 {
		t.Fatalf("expected 2 connections, got %d", n)
	}

	if _, ok := r.Remove("t1"); !ok {
		t.Fatalf("expected t1 to be removed")
	}
	if n := len(r.ConnectionsOf("alice")); n != 1 {
		t.Fatalf("expected 1 connection, got %d", n)
	}
	r.Remove("t2")
	if n := len(r.ConnectionsOf("alice")); n != 0 {
		t.Fatalf("expected no connections, got %d", n)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	if _, ok := r.Remove("t2"); ok {
		t.Fatalf("second remove should report false")
	}
}
