package core

import (
	"errors"
	"testing"
)

func TestAllowlistAuthorizerAuthorize(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ops", "viewer"},
	})
	if err := a.Authorize(Subject{Source: "web", ID: "ops"}, Action{Module: "stats", Command: "dashboard"}); err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
}

func TestAllowlistAuthorizerDenyUnknownID(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ops"},
	})
	err := a.Authorize(Subject{Source: "web", ID: "intruder"}, Action{Module: "stats", Command: "dashboard"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestAllowlistAuthorizerDenyUnknownSource(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"ops"},
	})
	if err := a.Authorize(Subject{Source: "cli", ID: "ops"}, Action{Module: "stats"}); err == nil {
		t.Fatalf("expected deny")
	}
}

func TestAllowlistAuthorizerModuleScope(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"analyst@stats"},
	})
	if err := a.Authorize(Subject{Source: "web", ID: "analyst"}, Action{Module: "stats", Command: "revenue"}); err != nil {
		t.Fatalf("expected allow for scoped module, got %v", err)
	}
	if err := a.Authorize(Subject{Source: "web", ID: "analyst"}, Action{Module: "system", Command: "status"}); err == nil {
		t.Fatalf("expected deny outside scope")
	}
}

func TestAllowlistAuthorizerWildcard(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"cli": {"*"},
	})
	if err := a.Authorize(Subject{Source: "cli", ID: "root"}, Action{Module: "system"}); err != nil {
		t.Fatalf("expected wildcard allow, got %v", err)
	}
	if err := a.Authorize(Subject{Source: "cli"}, Action{Module: "system"}); !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("expected ErrInvalidArguments for empty subject, got %v", err)
	}
}
