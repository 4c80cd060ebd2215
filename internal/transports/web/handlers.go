package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"whstats/internal/core"
	"whstats/internal/modules/stats"
	"whstats/internal/storage"
)

type executeRequest struct {
	Module  string   `json:"module"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// envelope - core.Response с идентификатором запроса.
type envelope struct {
	core.Response
	RequestID string `json:"request_id"`
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), a.cfg.RequestTimeout)
		defer cancel()
		if err := a.health(ctx); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id":  requestIDFromContext(r.Context()),
		"subject":     subjectIDFromContext(r.Context()),
		"roles":       rolesFromContext(r.Context()),
		"auth_method": authMethodFromContext(r.Context()),
	})
}

func (a *Adapter) handleModules(w http.ResponseWriter, r *http.Request) {
	items := make(map[string][]string)
	for _, name := range a.registry.Providers() {
		cmds, err := a.registry.Commands(name)
		if err != nil {
			continue
		}
		items[name] = cmds
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": requestIDFromContext(r.Context()),
		"items":      items,
	})
}

// handleStats выполняет команду модуля stats; параметры строки запроса
// передаются как key=value.
func (a *Adapter) handleStats(w http.ResponseWriter, r *http.Request) {
	command := r.PathValue("command")
	query := r.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, k+"="+query.Get(k))
	}
	a.execute(w, r, "web:stats", "stats", command, args)
}

func (a *Adapter) handleExecute(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxExecuteReq).(executeRequest)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "bad_command")
		return
	}
	a.execute(w, r, "web:execute", req.Module, req.Command, req.Args)
}

func (a *Adapter) execute(w http.ResponseWriter, r *http.Request, auditAction, module, command string, args []string) {
	subjectID := subjectIDFromContext(r.Context())
	requestID := requestIDFromContext(r.Context())
	auditPayload := map[string]string{
		"module":      module,
		"command":     command,
		"auth_method": authMethodFromContext(r.Context()),
	}

	resp, err := a.registry.Execute(r.Context(), module, command, args)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			resp = core.Fail("request_timeout", errorMessage("request_timeout"), err)
		}
		if resp.Code == "" {
			resp = core.Fail("query_failed", "command failed", err)
		}
		auditPayload["error_code"] = resp.Code
		a.log.Warn("command failed", "module", module, "command", command, "request_id", requestID, "err", err)
		writeJSON(w, r, statusForCode(resp.Code), envelope{Response: resp, RequestID: requestID})
		_ = a.writeAudit(r.Context(), subjectID, auditAction, "error", auditPayload, requestID)
		return
	}

	writeJSON(w, r, http.StatusOK, envelope{Response: resp, RequestID: requestID})
	_ = a.writeAudit(r.Context(), subjectID, auditAction, "ok", auditPayload, requestID)
}

func (a *Adapter) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	rec, err := a.store.LatestSnapshot(r.Context(), stats.SnapshotKind)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "snapshot_not_found")
		case errors.Is(r.Context().Err(), context.DeadlineExceeded):
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
		default:
			writeError(w, r, http.StatusInternalServerError, "query_failed")
		}
		return
	}
	writeJSON(w, r, http.StatusOK, envelope{
		Response: core.OK(map[string]any{
			"id":       rec.ID,
			"ts":       rec.TS.UTC().Format(time.RFC3339),
			"degraded": rec.Degraded,
			"snapshot": json.RawMessage(rec.Payload),
		}),
		RequestID: requestID,
	})
}

func (a *Adapter) handleAudit(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFromContext(r.Context())
	subjectID := subjectIDFromContext(r.Context())

	q := storage.AuditQuery{
		Subject: r.URL.Query().Get("subject"),
		Limit:   parseLimit(r.URL.Query().Get("limit")),
	}
	for _, bound := range []struct {
		param string
		dst   *time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		v := r.URL.Query().Get(bound.param)
		if v == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_"+bound.param)
			return
		}
		*bound.dst = ts
	}

	events, err := a.store.QueryAudit(r.Context(), q)
	if err != nil {
		if errors.Is(r.Context().Err(), context.DeadlineExceeded) {
			writeError(w, r, http.StatusGatewayTimeout, "request_timeout")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "query_failed")
		return
	}

	type eventDTO struct {
		Subject   string          `json:"subject"`
		Action    string          `json:"action"`
		Source    string          `json:"source"`
		Status    string          `json:"status"`
		RequestID string          `json:"request_id"`
		Payload   json.RawMessage `json:"payload,omitempty"`
		TS        string          `json:"ts"`
	}
	items := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		items = append(items, eventDTO{
			Subject:   ev.Subject,
			Action:    ev.Action,
			Source:    ev.Source,
			Status:    ev.Status,
			RequestID: ev.RequestID,
			Payload:   json.RawMessage(ev.Payload),
			TS:        ev.TS.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"request_id": requestID,
		"items":      items,
	})
	_ = a.writeAudit(r.Context(), subjectID, "web:audit_query", "ok", map[string]string{"items": strconv.Itoa(len(items))}, requestID)
}

func decodeExecuteRequest(r *http.Request) (executeRequest, string, int) {
	var req executeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return executeRequest{}, "payload_too_large", http.StatusRequestEntityTooLarge
		}
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if dec.More() {
		return executeRequest{}, "invalid_json", http.StatusBadRequest
	}
	if strings.TrimSpace(req.Module) == "" || strings.TrimSpace(req.Command) == "" {
		return executeRequest{}, "bad_command", http.StatusBadRequest
	}
	return req, "", 0
}

func (a *Adapter) writeAudit(ctx context.Context, subject, action, status string, payload any, requestID string) error {
	if a.store == nil {
		return nil
	}
	var raw []byte
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}
	// аудит пишется и после истечения таймаута запроса
	ctx = context.WithoutCancel(ctx)
	if err := a.store.SaveAudit(ctx, storage.AuditEvent{
		Subject:   subject,
		Action:    action,
		Source:    "web",
		Status:    status,
		RequestID: requestID,
		Payload:   raw,
	}); err != nil {
		a.log.Warn("audit write failed", "action", action, "err", err)
		return err
	}
	return nil
}

func parseLimit(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 50
	}
	return n
}

func statusForCode(code string) int {
	switch code {
	case "invalid_argument":
		return http.StatusBadRequest
	case "unknown_command", "module_not_found", "not_found":
		return http.StatusNotFound
	case "not_configured":
		return http.StatusServiceUnavailable
	case "request_timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code string) {
	resp := core.Fail(code, errorMessage(code), nil)
	resp.Error = code
	writeJSON(w, r, statusCode, envelope{Response: resp, RequestID: requestIDFromContext(r.Context())})
}

func errorMessage(code string) string {
	switch code {
	case "auth_required":
		return "authentication is required"
	case "invalid_token":
		return "token is invalid"
	case "access_denied":
		return "access denied"
	case "rate_limited":
		return "too many requests"
	case "payload_too_large":
		return "request payload is too large"
	case "request_timeout":
		return "request timeout"
	case "cors_denied":
		return "cors policy denied request"
	default:
		return strings.ReplaceAll(code, "_", " ")
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	if id := requestIDFromContext(r.Context()); id != "" {
		w.Header().Set("X-Request-ID", id)
	}
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
