package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/deploy"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/pipeline"
	"github.com/FutureSolutionDev/Deploy-Center-Server-sub001/internal/service/webhook"
)

const (
	healthCheckTimeout = 2 * time.Second
	maxWebhookBody     = 5 << 20
)

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
	code := http.StatusOK
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			r.logger.Error("database health check failed", "error", err)
			body["status"], body["database"] = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		} else {
			body["database"] = "up"
		}
	}
	body["queues"] = len(r.deployments.Queues().GetAllQueuesStatus())
	writeJSON(w, code, body)
}

func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		r.metrics.recordWebhook("unknown_project")
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxWebhookBody))
	if err != nil {
		r.metrics.recordWebhook("unreadable")
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	out, err := r.webhooks.Ingest(req.Context(), webhook.Delivery{
		ProjectID: projectID,
		Header:    req.Header,
		Body:      body,
	})
	if err != nil {
		status := statusFor(err)
		r.metrics.recordWebhook(strconv.Itoa(status))
		if status == http.StatusNotFound {
			writeError(w, status, "unknown project")
			return
		}
		r.writeServiceError(w, req, err)
		return
	}
	if !out.DeploymentTriggered {
		result := "ignored"
		if out.Processed {
			result = "not_triggered"
		}
		r.metrics.recordWebhook(result)
		writeJSON(w, http.StatusOK, out)
		return
	}
	r.metrics.recordWebhook("triggered")
	writeJSON(w, http.StatusCreated, map[string]any{
		"delivery_id":          out.DeliveryID,
		"processed":            true,
		"deployment_triggered": true,
		"deployment":           deploymentView(*out.Deployment, false),
	})
}

func (r *Router) handleWebhookSecret(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	var payload struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := r.projects.RotateSecret(req.Context(), projectID, payload.Secret); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

func (r *Router) handleListProjects(w http.ResponseWriter, req *http.Request) {
	projects, err := r.projects.List(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleListDeployments(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	list, err := r.deployments.ListByProject(req.Context(), projectID, limit)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, deploymentViews(list))
}

func (r *Router) handleTriggerDeployment(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	var payload struct {
		Branch  string `json:"branch"`
		Commit  string `json:"commit"`
		Message string `json:"message"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	info, _ := authInfoFromContext(req.Context())
	d, err := r.deployments.Create(req.Context(), deploy.CreateInput{
		ProjectID:     projectID,
		Branch:        payload.Branch,
		CommitHash:    payload.Commit,
		CommitMessage: payload.Message,
		TriggeredBy:   info.UserID,
		Manual:        true,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, deploymentView(*d, false))
}

func (r *Router) handleGetDeployment(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown deployment")
		return
	}
	d, steps, err := r.deployments.Get(req.Context(), id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	out := deploymentView(*d, true)
	out.Steps = stepViews(steps)
	writeJSON(w, http.StatusOK, out)
}

func (r *Router) handleRetryDeployment(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown deployment")
		return
	}
	info, _ := authInfoFromContext(req.Context())
	d, err := r.deployments.Retry(req.Context(), id, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, deploymentView(*d, false))
}

func (r *Router) handleCancelDeployment(w http.ResponseWriter, req *http.Request) {
	id, ok := pathID(req, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown deployment")
		return
	}
	info, _ := authInfoFromContext(req.Context())
	d, err := r.deployments.Cancel(req.Context(), id, info.UserID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, deploymentView(*d, false))
}

func (r *Router) handleQueues(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, r.deployments.Queues().GetAllQueuesStatus())
}

func (r *Router) handleQueue(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	writeJSON(w, http.StatusOK, r.deployments.Queues().GetQueueStatus(projectID))
}

func (r *Router) handleRefreshQueue(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	var payload struct {
		MaxConcurrent *int `json:"max_concurrent"`
	}
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if payload.MaxConcurrent != nil {
		if _, err := r.projects.SetMaxConcurrent(req.Context(), projectID, *payload.MaxConcurrent); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
	}
	status, err := r.deployments.RefreshQueue(req.Context(), projectID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (r *Router) handleCancelPending(w http.ResponseWriter, req *http.Request) {
	projectID, ok := pathID(req, "projectID")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown project")
		return
	}
	count, err := r.deployments.CancelPending(req.Context(), projectID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": count})
}

func (r *Router) handleBuilderCallback(w http.ResponseWriter, req *http.Request) {
	if r.builder == nil {
		writeError(w, http.StatusNotFound, "builder executor not configured")
		return
	}
	token := strings.TrimSpace(req.Header.Get(pipeline.BuilderTokenHeader))
	if !r.builder.CheckToken(token) {
		r.logger.Warn("builder token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid builder token")
		return
	}
	var payload pipeline.Callback
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	err := r.builder.Deliver(payload)
	if errors.Is(err, pipeline.ErrUnknownDeployment) {
		r.logger.Info("builder callback ignored", "deployment_id", payload.DeploymentID, "status", payload.Status)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}
