package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"whstats/internal/core"
	"whstats/internal/storage"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// AuditSink записывает аудиторные события.
type AuditSink interface {
	SaveAudit(ctx context.Context, ev storage.AuditEvent) error
}

// Service объединяет общий пайплайн command->authz->ratelimit->core->audit
// для транспортов без собственного HTTP-стека.
type Service struct {
	Source      string
	Registry    *core.Registry
	Authorizer  core.Authorizer
	RateLimiter *RateLimiter
	AuditSink   AuditSink
}

// ExecuteText парсит строку вида "/module command key=value" и выполняет ее.
func (s *Service) ExecuteText(ctx context.Context, subjectID, text string) (core.Response, error) {
	module, command, args, err := ParseTextCommand(text)
	if err != nil {
		return core.Fail("bad_command", "bad command", err), err
	}
	return s.Execute(ctx, subjectID, module, command, args)
}

// Execute проверяет доступ и лимит, вызывает модуль и пишет аудит.
func (s *Service) Execute(ctx context.Context, subjectID, module, command string, args []string) (core.Response, error) {
	subject := core.Subject{Source: s.Source, ID: subjectID}
	action := core.Action{Module: module, Command: command}
	if s.Authorizer != nil {
		if err := s.Authorizer.Authorize(subject, action); err != nil {
			s.writeAudit(ctx, subject, action, "denied", args)
			return core.Fail("access_denied", "access denied", err), err
		}
	}
	if s.RateLimiter != nil && !s.RateLimiter.Allow(s.Source+":"+subjectID, time.Now()) {
		s.writeAudit(ctx, subject, action, "rate_limited", args)
		return core.Fail("rate_limited", "too many requests", ErrRateLimited), ErrRateLimited
	}
	resp, execErr := s.Registry.Execute(ctx, module, command, args)
	status := "ok"
	if execErr != nil || !resp.Success {
		status = "error"
	}
	s.writeAudit(ctx, subject, action, status, args)
	return resp, execErr
}

func (s *Service) writeAudit(ctx context.Context, subject core.Subject, action core.Action, status string, args []string) {
	if s.AuditSink == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"module":  action.Module,
		"command": action.Command,
		"args":    args,
	})
	_ = s.AuditSink.SaveAudit(context.WithoutCancel(ctx), storage.AuditEvent{
		Subject:   subject.ID,
		Action:    action.Module + ":" + action.Command,
		Source:    subject.Source,
		Status:    status,
		RequestID: uuid.NewString(),
		Payload:   payload,
	})
}

// ParseTextCommand переводит текст в (module, command, args).
// Формат: /module command arg1 arg2
func ParseTextCommand(text string) (string, string, []string, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", "", nil, ErrEmptyCommand
	}
	parts := strings.Fields(strings.TrimPrefix(t, "/"))
	if len(parts) < 2 {
		return "", "", nil, fmt.Errorf("invalid command format: %w", ErrEmptyCommand)
	}
	return parts[0], parts[1], append([]string{}, parts[2:]...), nil
}
