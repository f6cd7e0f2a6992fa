package handlers

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/dirlistener/dirlistener/internal/logger"
	"github.com/dirlistener/dirlistener/pkg/api/auth"
)

// AdminHandler exposes the two operator actions that aren't read-only:
// exchanging the configured admin secret for a bearer token, and
// clearing the quarantine sentinel after a failed-replay condition has
// been investigated.
type AdminHandler struct {
	SecretHash string
	JWT        *auth.JWTService
	Quarantine QuarantinePather
}

type loginRequest struct {
	Secret string `json:"secret"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// Login handles POST /admin/login. It exchanges the operator's
// configured secret for a short-lived JWT; there is exactly one
// principal, so there is no username field.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("malformed request body"))
		return
	}

	if !auth.VerifySecret(req.Secret, h.SecretHash) {
		writeJSON(w, http.StatusUnauthorized, errorResponse("invalid secret"))
		return
	}

	token, expiresAt, err := h.JWT.IssueToken()
	if err != nil {
		logger.Error("api: failed to issue admin token", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to issue token"))
		return
	}

	writeJSON(w, http.StatusOK, okResponse(loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}))
}

// ClearQuarantine handles POST /admin/quarantine/clear. It removes the
// failed.ldif sentinel so the dispatcher resumes processing on its next
// PreTransaction check (presence is the only signal; there is no
// separate "cause" to reset).
func (h *AdminHandler) ClearQuarantine(w http.ResponseWriter, r *http.Request) {
	path := h.Quarantine.Path()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Error("api: failed to clear quarantine sentinel", "path", path, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to clear quarantine sentinel"))
		return
	}

	logger.Info("api: quarantine sentinel cleared by admin request", "path", path)
	writeJSON(w, http.StatusOK, okResponse(map[string]interface{}{"cleared": true}))
}
