package api

import (
	"encoding/json"
	"net/http"

	"github.com/tirtalab/aquasense-core/internal/auth"
)

// tokenRequest is the body of POST /api/v1/auth/token.
type tokenRequest struct {
	APIKey  string `json:"api_key"`
	Subject string `json:"subject,omitempty"`
}

// tokenResponse is the successful token issue response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// handleToken issues a short-lived observer JWT in exchange for the
// operator API key. The key may be sent in the body or the X-API-Key
// header.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if r.Body != nil {
		//nolint:errcheck // An empty or malformed body falls through to the header
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.APIKey == "" {
		req.APIKey = r.Header.Get("X-API-Key")
	}

	if err := auth.CheckAPIKey(req.APIKey, s.secCfg.APIKey); err != nil {
		s.logger.Warn("token request with bad api key",
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeUnauthorized(w, "invalid api key")
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = "observer"
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	token, err := auth.GenerateAccessToken(subject, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to generate access token", "error", err)
		writeInternalError(w, "token generation failed")
		return
	}
	if ttl <= 0 {
		ttl = 15
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60,
	})
}
