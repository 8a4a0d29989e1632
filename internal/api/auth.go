package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/keyrhythm-core/internal/auth"
)

// authResponse is the body of every register and login response.
type authResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`

	// Set only on a successful login.
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
}

// decodeSubmission reads a submission from the request body. A missing
// body, a body that is not a JSON object, and an empty object all yield
// auth.ErrNoData.
func decodeSubmission(r *http.Request) (auth.Submission, error) {
	var sub auth.Submission
	if r.Body == nil {
		return sub, auth.ErrNoData
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || len(fields) == 0 {
		return sub, auth.ErrNoData
	}
	if raw, ok := fields["username"]; ok {
		//nolint:errcheck // a non-string leaves the field empty and fails validation
		json.Unmarshal(raw, &sub.Username)
	}
	if raw, ok := fields["password"]; ok {
		//nolint:errcheck // as above
		json.Unmarshal(raw, &sub.Password)
	}
	if raw, ok := fields["times"]; ok {
		//nolint:errcheck // TimingData records bad input as Invalid
		sub.Times.UnmarshalJSON(raw)
	}
	sub.RemoteAddr = r.RemoteAddr
	sub.UserAgent = r.UserAgent()
	return sub, nil
}

// writeAuthError answers a failed register or login.
func writeAuthError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), authResponse{Message: auth.Message(err)})
}

// handleRegister creates a credential record.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	if err := s.service.Register(r.Context(), sub); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		OK:      true,
		Message: auth.SuccessMessage(auth.ActionRegister),
	})
}

// handleLogin checks password and rhythm, and issues an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sub, err := decodeSubmission(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	rec, err := s.service.Authenticate(r.Context(), sub)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	ttl := s.secCfg.JWT.TokenTTL()
	token, err := auth.IssueToken(rec, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("issuing access token", "username", rec.Username, "error", err)
		writeAuthError(w, errors.Join(auth.ErrLoginFailed, err))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		OK:          true,
		Message:     auth.SuccessMessage(auth.ActionLogin),
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
	})
}
