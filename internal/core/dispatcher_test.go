package core

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name    string
	initErr error
	execErr error
}

func (f *fakeProvider) Name() string                   { return f.name }
func (f *fakeProvider) Init(ctx context.Context) error { return f.initErr }
func (f *fakeProvider) Commands() []string             { return []string{"ping", "echo"} }
func (f *fakeProvider) Execute(ctx context.Context, cmd string, args []string) (Response, error) {
	if f.execErr != nil {
		return Fail("exec_failed", "execution failed", f.execErr), f.execErr
	}
	return OK(cmd), nil
}

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	if err := r.Register(ctx, &fakeProvider{name: "stats"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := r.Execute(ctx, "stats", "ping", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !resp.Success || resp.Data != "ping" {
		t.Fatalf("unexpected response: %#v", resp)
	}
}

func TestExecuteFailureEnvelope(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	boom := errors.New("boom")
	if err := r.Register(ctx, &fakeProvider{name: "stats", execErr: boom}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := r.Execute(ctx, "stats", "ping", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if resp.Success || resp.Error != "boom" || resp.Message == "" {
		t.Fatalf("unexpected envelope: %#v", resp)
	}
}

func TestDuplicateProvider(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	prov := &fakeProvider{name: "dup"}
	if err := r.Register(ctx, prov); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(ctx, prov); !errors.Is(err, ErrProviderExists) {
		t.Fatalf("expected ErrProviderExists, got %v", err)
	}
}

func TestRegisterInitFailure(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(context.Background(), &fakeProvider{name: "bad", initErr: errors.New("no db")}); err == nil {
		t.Fatalf("expected init error")
	}
	if len(r.Providers()) != 0 {
		t.Fatalf("failed provider must not be registered")
	}
}

func TestUnknownProvider(t *testing.T) {
	r := NewRegistry()
	resp, err := r.Execute(context.Background(), "none", "ping", nil)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if resp.Code != "module_not_found" {
		t.Fatalf("unexpected code: %q", resp.Code)
	}
}

func TestProvidersAndCommandsSorted(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	for _, name := range []string{"system", "stats"} {
		if err := r.Register(ctx, &fakeProvider{name: name}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if got := r.Providers(); len(got) != 2 || got[0] != "stats" || got[1] != "system" {
		t.Fatalf("unexpected providers: %v", got)
	}
	cmds, err := r.Commands("stats")
	if err != nil {
		t.Fatalf("commands: %v", err)
	}
	if len(cmds) != 2 || cmds[0] != "echo" {
		t.Fatalf("unexpected commands: %v", cmds)
	}
	if _, err := r.Commands("none"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
