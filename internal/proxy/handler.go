// Package proxy implements the restricted command proxy: the allow-listed
// JSON/data surface of the backend, with per-command ownership checks,
// CSRF brokering, and header/cookie filtering on both legs.
package proxy

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/cloudsync"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
)

// Handler serves /api/refine/*path. The wildcard also dispatches the
// upload and live-cleanup sub-endpoints, which cannot coexist with a gin
// wildcard as separate routes.
type Handler struct {
	client         *refine.Client
	registry       registry.Store
	sync           *cloudsync.Reconciler
	maxBodyBytes   int64
	maxUploadBytes int64
}

func NewHandler(client *refine.Client, reg registry.Store, sync *cloudsync.Reconciler, maxUploadBytes int64) *Handler {
	return &Handler{
		client:         client,
		registry:       reg,
		sync:           sync,
		maxBodyBytes:   4 << 20,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.Any("/*path", h.dispatch)
}

func (h *Handler) dispatch(c *gin.Context) {
	trimmed := strings.Trim(c.Param("path"), "/")
	switch {
	case trimmed == "upload" && c.Request.Method == http.MethodPost:
		h.upload(c)
	case trimmed == "cleanup" && c.Request.Method == http.MethodPost:
		h.liveDelete(c)
	default:
		h.command(c)
	}
}

func (h *Handler) command(c *gin.Context) {
	user := auth.CurrentUser(c)

	segments := refine.SplitCommandPath(c.Param("path"))
	command, err := refine.ResolveCommand(segments)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	if err := refine.AssertAllowedCommand(command); err != nil {
		apierr.Respond(c, err)
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	if refine.RequiresProjectOwnership(command) {
		projectID := projectIDFromRequest(c, body)
		if projectID == "" {
			apierr.Respond(c, apierr.BadRequest("Missing project id"))
			return
		}
		owns, err := h.registry.BelongsTo(c.Request.Context(), projectID, user.ID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		if !owns {
			apierr.Respond(c, apierr.Forbidden("Project does not belong to the authenticated user"))
			return
		}
		if err := h.registry.Touch(c.Request.Context(), projectID, user.ID); err != nil {
			log.Printf("[warn] operation=registry_touch project_id=%s error=%v", projectID, err)
		}
	}

	headers := h.client.BuildProxyHeaders(c.Request)
	if err := h.client.EnsureCSRF(c.Request.Context(), headers, c.Request.Method); err != nil {
		apierr.Respond(c, err)
		return
	}

	target := h.client.BuildURL(backendCommandPath(segments), c.Request.URL.RawQuery)
	resp, err := h.client.Do(c.Request.Context(), c.Request.Method, target, headers, bytes.NewReader(body))
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	defer resp.Body.Close()

	if command == "get-all-project-metadata" && resp.StatusCode == http.StatusOK {
		h.sync.Kick(user)
	}
	if command == "delete-project" && resp.StatusCode == http.StatusOK {
		if projectID := projectIDFromRequest(c, body); projectID != "" {
			if err := h.registry.Remove(c.Request.Context(), projectID, user.ID); err != nil {
				log.Printf("[warn] operation=registry_remove project_id=%s error=%v", projectID, err)
			}
		}
	}

	RelayResponse(c, resp)
}

// backendCommandPath maps inbound wildcard segments to the backend path:
// paths already rooted at command/ pass through, anything else is treated
// as a bare command name under command/core.
func backendCommandPath(segments []string) string {
	normalized := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	if len(normalized) > 0 && normalized[0] == "command" {
		return "/" + strings.Join(normalized, "/")
	}
	return "/command/core/" + strings.Join(normalized, "/")
}

func (h *Handler) readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodyBytes+1))
	if err != nil {
		return nil, apierr.BadRequest("failed to read request body")
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, apierr.New(http.StatusRequestEntityTooLarge, "Request body too large")
	}
	return body, nil
}

// projectIDFromRequest resolves the target project: the project query
// parameter first, then the form body for POSTed commands.
func projectIDFromRequest(c *gin.Context, body []byte) string {
	if projectID := c.Query("project"); projectID != "" {
		return projectID
	}
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			return values.Get("project")
		}
	}
	return ""
}
