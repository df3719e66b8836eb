package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldrally/scoreline/internal/realtime"
	"github.com/fieldrally/scoreline/internal/scoreline"
)

type ServerConfig struct {
	JWTSecret string
	// AllowDemoToken enables the literal token "demo" as a read-only login
	// for DemoOrgID. The source system fell back to a demo user implicitly
	// whenever auth failed; here the bypass is an explicit, environment-gated
	// opt-in and is off by default.
	AllowDemoToken  bool
	DemoOrgID       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
}

type Server struct {
	engine      *scoreline.Engine
	ingestor    *scoreline.Ingestor
	recorder    *scoreline.HistoryRecorder
	hub         *realtime.Hub
	cfg         ServerConfig
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(engine *scoreline.Engine, ingestor *scoreline.Ingestor, recorder *scoreline.HistoryRecorder, hub *realtime.Hub) *Server {
	return NewServerWithConfig(engine, ingestor, recorder, hub, ServerConfig{})
}

func NewServerWithConfig(engine *scoreline.Engine, ingestor *scoreline.Ingestor, recorder *scoreline.HistoryRecorder, hub *realtime.Hub, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.DemoOrgID == "" {
		cfg.DemoOrgID = "demo-org"
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		engine:      engine,
		ingestor:    ingestor,
		recorder:    recorder,
		hub:         hub,
		cfg:         cfg,
		rateLimiter: limiter,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/dashboard" && r.Method == http.MethodGet {
		s.handleDashboard(w, r)
		return
	}
	if r.URL.Path == "/ws" && r.Method == http.MethodGet {
		s.handleWebsocket(w, r)
		return
	}
	if r.URL.Path == "/v1/admin/snapshots" && r.Method == http.MethodPost {
		s.handleAdminSnapshot(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 4 || parts[0] != "v1" || parts[1] != "orgs" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	orgID := parts[2]

	var requiredScope string
	var route string
	switch {
	case len(parts) == 4 && parts[3] == "rankings" && r.Method == http.MethodGet:
		requiredScope = "rankings:read"
		route = "rankings"
	case len(parts) == 4 && parts[3] == "history" && r.Method == http.MethodGet:
		requiredScope = "history:read"
		route = "history"
	case len(parts) == 4 && parts[3] == "calls" && r.Method == http.MethodPost:
		requiredScope = "events:write"
		route = "record_call"
	case len(parts) == 5 && parts[3] == "followups" && parts[4] == "missed" && r.Method == http.MethodPost:
		requiredScope = "events:write"
		route = "missed_followup"
	case len(parts) == 5 && parts[3] == "reps" && r.Method == http.MethodGet:
		requiredScope = "rankings:read"
		route = "rep_stats"
	case len(parts) == 5 && parts[3] == "reps" && r.Method == http.MethodDelete:
		requiredScope = "rankings:admin"
		route = "rep_remove"
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}

	claims, authErr := s.authorize(r.Header.Get("Authorization"), orgID, requiredScope)
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}
	correlationID := getCorrelationID(r)
	if correlationID == "" && r.Method != http.MethodGet {
		writeError(w, http.StatusBadRequest, "bad_request", "missing X-Correlation-Id header", "")
		return
	}
	if s.rateLimiter != nil {
		key := orgID + "|" + claims.RepName
		if !s.rateLimiter.allow(key, time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", correlationID)
			return
		}
	}

	switch route {
	case "rankings":
		s.handleRankings(w, r, orgID, correlationID)
	case "history":
		s.handleHistory(w, r, orgID, correlationID)
	case "record_call":
		s.handleRecordCall(w, r, orgID, correlationID)
	case "missed_followup":
		s.handleMissedFollowup(w, r, orgID, correlationID)
	case "rep_stats":
		s.handleRepStats(w, r, orgID, parts[4], correlationID)
	case "rep_remove":
		s.handleRepRemove(w, r, orgID, parts[4], correlationID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", correlationID)
	}
}

// authorize checks the bearer token, honoring the explicit demo bypass when
// it is enabled and the target organization is the demo organization.
func (s *Server) authorize(authHeader, orgID, requiredScope string) (tokenClaims, *authError) {
	if s.cfg.AllowDemoToken {
		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if raw == "demo" {
			claims := tokenClaims{
				OrgID:   s.cfg.DemoOrgID,
				RepName: "demo",
				Scopes:  map[string]struct{}{"rankings:read": {}, "history:read": {}},
			}
			if orgID != "" && orgID != claims.OrgID {
				return tokenClaims{}, &authError{status: 403, code: "forbidden", message: "organization mismatch"}
			}
			if requiredScope != "" && !hasAnyScope(claims.Scopes, requiredScope) {
				return tokenClaims{}, &authError{status: 403, code: "forbidden", message: "missing required scope: " + requiredScope}
			}
			return claims, nil
		}
	}
	return authorizeBearer(authHeader, s.cfg.JWTSecret, orgID, requiredScope, time.Now().UTC())
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// Browsers cannot set headers on websocket upgrades.
		if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
			authHeader = "Bearer " + token
		}
	}
	claims, authErr := s.authorize(authHeader, "", "rankings:read")
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}
	s.hub.ServeWS(w, r, claims.OrgID)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request, orgID, correlationID string) {
	limit, err := parseOptionalBoundedInt(r.URL.Query().Get("limit"), 10, 1, 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid limit", correlationID)
		return
	}
	rankings := s.engine.GetTopRankings(r.Context(), orgID, limit)
	if rankings == nil {
		rankings = []scoreline.RankedEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orgId":    orgID,
		"rankings": rankings,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, orgID, correlationID string) {
	days, err := parseOptionalBoundedInt(r.URL.Query().Get("days"), 30, 1, 365)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid days", correlationID)
		return
	}
	snapshots, err := s.recorder.Query(r.Context(), orgID, days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	if snapshots == nil {
		snapshots = []scoreline.RankingSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orgId":     orgID,
		"snapshots": snapshots,
	})
}

func (s *Server) handleRecordCall(w http.ResponseWriter, r *http.Request, orgID, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	ev, err := scoreline.ParseCallEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		return
	}
	if ev.OrgID != orgID {
		writeError(w, http.StatusBadRequest, "bad_request", "orgId in body does not match route", correlationID)
		return
	}
	result, err := s.ingestor.RecordCall(ev)
	if err != nil {
		if errors.Is(err, scoreline.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMissedFollowup(w http.ResponseWriter, r *http.Request, orgID, correlationID string) {
	body, ok := s.readRequestBody(w, r, correlationID)
	if !ok {
		return
	}
	ev, err := scoreline.ParseFollowupEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
		return
	}
	if ev.OrgID != orgID {
		writeError(w, http.StatusBadRequest, "bad_request", "orgId in body does not match route", correlationID)
		return
	}
	result, err := s.ingestor.RecordMissedFollowup(ev)
	if err != nil {
		if errors.Is(err, scoreline.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRepStats(w http.ResponseWriter, r *http.Request, orgID, participantID, correlationID string) {
	stats, err := s.engine.GetRepStats(r.Context(), orgID, participantID)
	if err != nil {
		if errors.Is(err, scoreline.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "participant has no score entry", correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRepRemove(w http.ResponseWriter, r *http.Request, orgID, participantID, correlationID string) {
	s.engine.Remove(orgID, participantID)
	if s.hub != nil {
		s.hub.PublishRankings(orgID)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "removed",
		"orgId":         orgID,
		"participantId": participantID,
	})
}

func (s *Server) handleAdminSnapshot(w http.ResponseWriter, r *http.Request) {
	claims, authErr := s.authorize(r.Header.Get("Authorization"), "", "")
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}
	if !hasAnyScope(claims.Scopes, "admin:snapshot") {
		writeError(w, http.StatusForbidden, "forbidden", "missing required scope: admin:snapshot", getCorrelationID(r))
		return
	}
	correlationID := getCorrelationID(r)
	if correlationID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing X-Correlation-Id header", "")
		return
	}
	orgID := strings.TrimSpace(r.URL.Query().Get("orgId"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing orgId parameter", correlationID)
		return
	}
	snapshot, err := s.recorder.Snapshot(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, scoreline.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error(), correlationID)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), correlationID)
		return
	}
	writeJSON(w, http.StatusCreated, snapshot)
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func (s *Server) readRequestBody(w http.ResponseWriter, r *http.Request, correlationID string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", correlationID)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body", correlationID)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(l.window),
		}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}

func parseOptionalBoundedInt(raw string, fallback, min, max int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, err
	}
	if parsed < min || parsed > max {
		return 0, errors.New("out of range")
	}
	return parsed, nil
}
