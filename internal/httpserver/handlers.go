package httpserver

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strings"

	"github.com/storyforge/shield/internal/auth"
	shielderrors "github.com/storyforge/shield/internal/errors"
	"github.com/storyforge/shield/internal/logging"
	"github.com/storyforge/shield/internal/monitor"
)

// storyAPISecretName is the upstream story-engine credential.
const storyAPISecretName = "storyforge/api-key"

// StoryBackend is the upstream the protected route hands validated
// prompts to. The credential travels as a logging.Secret so it can
// never leak through log output.
type StoryBackend interface {
	Generate(ctx context.Context, apiKey logging.Secret, record map[string]interface{}) (string, error)
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error   string       `json:"error"`
	Details []fieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
}

func validationFailed(w http.ResponseWriter, details []fieldError) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Validation failed", Details: details})
}

func invalidFormat(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request format"})
}

func internalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func remoteIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type storyPromptRequest struct {
	Prompt    string `json:"prompt"`
	Theme     string `json:"theme"`
	SessionID string `json:"sessionId"`
}

// handleStoryPrompt is the protected route: token verification, rate
// limiting, schema validation, moderation and anomaly scoring in front
// of the story backend. External error bodies carry no internal detail.
func (s *Server) handleStoryPrompt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
		return
	}
	ctx := r.Context()

	token := bearerToken(r)
	result := s.deps.Verifier.ValidateToken(ctx, token)
	if !result.Valid {
		s.logger.Warn("token rejected: %s", result.InternalReason())
		s.deps.Monitor.Emit(ctx, monitor.EventAuthFailure, monitor.SeverityMedium, map[string]interface{}{
			"reason": result.InternalReason(),
			"path":   r.URL.Path,
			"ip":     remoteIP(r),
		})
		unauthorized(w)
		return
	}

	decision := auth.Authorize(result.Claims, "story:prompt")
	if !decision.Allowed {
		unauthorized(w)
		return
	}

	allowed, err := s.deps.Limiter.Allow(ctx, decision.UserID, s.rateLimit.Limit, s.rateLimit.WindowSeconds)
	if err != nil {
		// Counter store outage must not take the request path down.
		s.logger.Warn("rate limit store unavailable: %v", err)
		allowed = true
	}
	if !allowed {
		s.deps.Monitor.Emit(ctx, monitor.EventRateLimitExceeded, monitor.SeverityMedium, map[string]interface{}{
			"user_id": decision.UserID,
			"limit":   s.rateLimit.Limit,
		})
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded"})
		return
	}

	var req storyPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		invalidFormat(w)
		return
	}

	var details []fieldError
	prompt := s.validateField(&details, "prompt", "storyPrompt", req.Prompt)
	s.validateField(&details, "sessionId", "sessionId", req.SessionID)
	if req.Theme != "" {
		s.validateField(&details, "theme", "storyTheme", req.Theme)
	}
	if len(details) > 0 {
		fields := make([]string, len(details))
		for i, d := range details {
			fields[i] = d.Field
		}
		s.deps.Monitor.Emit(ctx, monitor.EventInvalidInput, monitor.SeverityLow, map[string]interface{}{
			"user_id": decision.UserID,
			"fields":  fields,
		})
		validationFailed(w, details)
		return
	}

	moderation := s.deps.Moderator.Moderate(ctx, prompt)
	if !moderation.Approved {
		s.deps.Monitor.Emit(ctx, monitor.EventModerationRejected, monitor.SeverityMedium, map[string]interface{}{
			"user_id": decision.UserID,
			"reasons": moderation.Reasons,
		})
		validationFailed(w, []fieldError{{Field: "prompt", Message: "content not allowed"}})
		return
	}

	if s.deps.Detector != nil {
		s.deps.Detector.DetectAnomalies(ctx, decision.UserID, monitor.Activity{
			Action:    "story_prompt",
			Country:   r.Header.Get("X-Geo-Country"),
			Device:    r.UserAgent(),
			IPAddress: remoteIP(r),
		})
	}

	record := map[string]interface{}{
		"prompt":    prompt,
		"sessionId": req.SessionID,
		"userId":    decision.UserID,
	}
	if err := s.deps.Crypto.EncryptFields(ctx, record, []string{"prompt"}, nil); err != nil {
		s.logger.Error("field encryption failed: %v", err)
		internalError(w)
		return
	}

	response := map[string]interface{}{
		"status":    "accepted",
		"sessionId": req.SessionID,
	}

	if s.deps.Backend != nil {
		apiKey, err := s.deps.Secrets.GetSecret(ctx, storyAPISecretName, true)
		if err != nil {
			s.logger.Error("story credential fetch failed: %v", err)
			internalError(w)
			return
		}
		s.deps.Monitor.Emit(ctx, monitor.EventSecretAccess, monitor.SeverityLow, map[string]interface{}{
			"name":    storyAPISecretName,
			"user_id": decision.UserID,
		})

		storyID, err := s.deps.Backend.Generate(ctx, logging.Secret(apiKey), record)
		if err != nil {
			s.logger.Error("story backend failed: %v", err)
			internalError(w)
			return
		}
		response["storyId"] = storyID
	}

	writeJSON(w, http.StatusOK, response)
}

// validateField runs one request field through its named schema,
// collecting a safe per-field message on violation and returning the
// sanitized value otherwise.
func (s *Server) validateField(details *[]fieldError, field, schema, value string) string {
	sanitized, err := s.deps.Schemas.Validate(schema, value)
	if err != nil {
		var ve shielderrors.ValidationError
		message := "invalid value"
		if stderrors.As(err, &ve) {
			message = ve.Message
		}
		*details = append(*details, fieldError{Field: field, Message: message})
		return ""
	}
	return sanitized
}
