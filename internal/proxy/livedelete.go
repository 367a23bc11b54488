package proxy

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
)

var bareDigitsPattern = regexp.MustCompile(`^\d+$`)

// liveDelete deletes one live backend project on explicit client request
// and drops its registry entry. Accepts the id as JSON, form data, or a
// bare body.
func (h *Handler) liveDelete(c *gin.Context) {
	user := auth.CurrentUser(c)

	projectID, err := h.liveDeleteProjectID(c)
	if err != nil {
		apierr.Respond(c, err)
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

	headers := h.client.BuildProxyHeaders(c.Request)
	headers.Del("Content-Type")
	if err := h.client.DeleteProject(c.Request.Context(), headers, projectID); err != nil {
		apierr.Respond(c, err)
		return
	}
	if err := h.registry.Remove(c.Request.Context(), projectID, user.ID); err != nil {
		log.Printf("[warn] operation=registry_remove project_id=%s error=%v", projectID, err)
	}

	log.Printf("[info] operation=live_delete user_id=%s project_id=%s", user.ID, projectID)
	c.JSON(http.StatusOK, gin.H{"deleted": true, "projectId": projectID})
}

func (h *Handler) liveDeleteProjectID(c *gin.Context) (string, error) {
	if projectID := c.Query("project"); bareDigitsPattern.MatchString(projectID) {
		return projectID, nil
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	if err != nil {
		return "", apierr.BadRequest("failed to read request body")
	}

	var parsed struct {
		ProjectID string `json:"projectId"`
	}
	if json.Unmarshal(raw, &parsed) == nil && bareDigitsPattern.MatchString(parsed.ProjectID) {
		return parsed.ProjectID, nil
	}

	if values, err := url.ParseQuery(string(raw)); err == nil {
		for _, key := range []string{"projectId", "project"} {
			if candidate := values.Get(key); bareDigitsPattern.MatchString(candidate) {
				return candidate, nil
			}
		}
	}

	if candidate := strings.TrimSpace(string(raw)); bareDigitsPattern.MatchString(candidate) {
		return candidate, nil
	}
	return "", apierr.BadRequest("Missing or invalid projectId")
}
