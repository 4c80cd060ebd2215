package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrProviderExists   = errors.New("provider already registered")
	ErrUnknownProvider  = errors.New("unknown provider")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Registry хранит зарегистрированные модули и выполняет команды.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]CommandProvider
}

// NewRegistry создает пустой реестр модулей.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]CommandProvider)}
}

// Register инициализирует модуль и добавляет его; имя должно быть уникальным.
func (r *Registry) Register(ctx context.Context, provider CommandProvider) error {
	if provider == nil {
		return fmt.Errorf("provider is nil: %w", ErrInvalidArguments)
	}
	name := provider.Name()
	if name == "" {
		return fmt.Errorf("provider name is empty: %w", ErrInvalidArguments)
	}

	r.mu.RLock()
	_, exists := r.providers[name]
	r.mu.RUnlock()
	if exists {
		return fmt.Errorf("%s: %w", name, ErrProviderExists)
	}
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("init %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("%s: %w", name, ErrProviderExists)
	}
	r.providers[name] = provider
	return nil
}

// Execute вызывает команду модуля.
func (r *Registry) Execute(ctx context.Context, module, cmd string, args []string) (Response, error) {
	r.mu.RLock()
	prov, ok := r.providers[module]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%s: %w", module, ErrUnknownProvider)
		return Fail("module_not_found", "module not found", err), err
	}
	return prov.Execute(ctx, cmd, args)
}

// Providers возвращает отсортированный список модулей.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commands возвращает команды модуля.
func (r *Registry) Commands(module string) ([]string, error) {
	r.mu.RLock()
	prov, ok := r.providers[module]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", module, ErrUnknownProvider)
	}
	cmds := append([]string(nil), prov.Commands()...)
	sort.Strings(cmds)
	return cmds, nil
}
