package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/keyrhythm-core/internal/audit"
	"github.com/nerrad567/keyrhythm-core/internal/auth"
)

// handleListAttempts returns the caller's own attempt history.
//
// Query parameters: limit, offset, action (register or login).
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "attempt history is not available")
		return
	}

	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "bearer token required")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Username: claims.Subject}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	switch action := auth.Action(q.Get("action")); action {
	case "", auth.ActionRegister, auth.ActionLogin:
		filter.Action = action
	default:
		writeBadRequest(w, "action must be register or login")
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing attempts", "username", claims.Subject, "error", err)
		writeInternalError(w, "failed to list attempts")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query value.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
