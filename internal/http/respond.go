package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/repository"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/deploy"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/pipeline"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/project"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
)

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor classifies service errors into response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, pipeline.ErrUnknownDeployment):
		return http.StatusNotFound
	case errors.Is(err, deploy.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, webhook.ErrMissingSignature), errors.Is(err, webhook.ErrInvalidSignature),
		errors.Is(err, webhook.ErrWebhooksDisabled):
		return http.StatusUnauthorized
	case errors.Is(err, deploy.ErrInvalidInput), errors.Is(err, deploy.ErrRetryNotAllowed),
		errors.Is(err, deploy.ErrInvalidTransition), errors.Is(err, webhook.ErrNormalization),
		errors.Is(err, repository.ErrInvalidArgument), errors.Is(err, pipeline.ErrInvalidCallback),
		errors.Is(err, webhook.ErrSecretRequired), project.IsValidationError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError maps err onto the error envelope. Internal errors are not echoed.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "path", req.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
