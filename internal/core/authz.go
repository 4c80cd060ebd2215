package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAccessDenied - субъект не имеет доступа к действию.
var ErrAccessDenied = errors.New("access denied")

// Subject описывает источник команды и его идентификатор.
type Subject struct {
	Source string
	ID     string
}

// Action описывает целевую операцию.
type Action struct {
	Module  string
	Command string
}

// Authorizer отвечает за решение доступа к действию.
type Authorizer interface {
	Authorize(subject Subject, action Action) error
}

// AllowlistAuthorizer реализует deny-by-default по source/id.
// Запись "id" разрешает все модули, "id@module" - только указанный,
// "*" - любой идентификатор источника.
type AllowlistAuthorizer struct {
	allowed map[string]map[string][]string
}

// NewAllowlistAuthorizer создает authorizer из map[source][]entry.
func NewAllowlistAuthorizer(src map[string][]string) *AllowlistAuthorizer {
	allowed := make(map[string]map[string][]string, len(src))
	for source, entries := range src {
		bySubject := make(map[string][]string, len(entries))
		for _, entry := range entries {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			id, module, scoped := strings.Cut(entry, "@")
			if !scoped {
				module = "*"
			}
			bySubject[id] = append(bySubject[id], module)
		}
		allowed[source] = bySubject
	}
	return &AllowlistAuthorizer{allowed: allowed}
}

// Authorize возвращает ошибку, если subject не в allowlist.
func (a *AllowlistAuthorizer) Authorize(subject Subject, action Action) error {
	if subject.Source == "" || subject.ID == "" {
		return fmt.Errorf("empty subject: %w", ErrInvalidArguments)
	}
	bySubject, ok := a.allowed[subject.Source]
	if !ok {
		return fmt.Errorf("source %s: %w", subject.Source, ErrAccessDenied)
	}
	modules := append(append([]string(nil), bySubject[subject.ID]...), bySubject["*"]...)
	for _, m := range modules {
		if m == "*" || m == action.Module {
			return nil
		}
	}
	return fmt.Errorf("subject %s/%s on %s: %w", subject.Source, subject.ID, action.Module, ErrAccessDenied)
}
