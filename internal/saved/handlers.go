package saved

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
)

// Handler exposes the saved-project endpoints under /api/projects.
type Handler struct {
	service *Service
	client  *refine.Client
}

func NewHandler(service *Service, client *refine.Client) *Handler {
	return &Handler{service: service, client: client}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.save)
	rg.GET("/:id", h.get)
	rg.DELETE("/:id", h.delete)
	rg.POST("/:id/restore", h.restore)
	rg.GET("/:id/download", h.download)
}

func (h *Handler) list(c *gin.Context) {
	user := auth.CurrentUser(c)
	projects, err := h.service.List(c.Request.Context(), user)
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

func (h *Handler) save(c *gin.Context) {
	user := auth.CurrentUser(c)

	var req SaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierr.Respond(c, apierr.BadRequest("invalid JSON body"))
		return
	}

	headers := h.client.BuildProxyHeaders(c.Request)
	project, err := h.service.Save(c.Request.Context(), user, req, headers)
	if err != nil {
		apierr.Respond(c, err)
		return
	}

	log.Printf("[info] operation=save_project user_id=%s saved_id=%s size_bytes=%d", user.ID, project.ID, project.SizeBytes)
	c.JSON(http.StatusCreated, gin.H{"project": project})
}

func (h *Handler) get(c *gin.Context) {
	user := auth.CurrentUser(c)
	project, err := h.service.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			apierr.Respond(c, apierr.New(http.StatusNotFound, "Saved project not found"))
			return
		}
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func (h *Handler) delete(c *gin.Context) {
	user := auth.CurrentUser(c)
	warnings, err := h.service.Delete(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			apierr.Respond(c, apierr.New(http.StatusNotFound, "Saved project not found"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	body := gin.H{"deleted": true}
	if len(warnings) > 0 {
		body["warnings"] = warnings
		log.Printf("[warn] operation=delete_saved_project user_id=%s saved_id=%s warnings=%d", user.ID, c.Param("id"), len(warnings))
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) restore(c *gin.Context) {
	user := auth.CurrentUser(c)

	var req struct {
		ProjectName string `json:"projectName"`
	}
	// Restore works with an empty body; the name falls back to a
	// generated one.
	_ = c.ShouldBindJSON(&req)

	headers := h.client.BuildProxyHeaders(c.Request)
	result, err := h.service.Restore(c.Request.Context(), user, c.Param("id"), req.ProjectName, headers)
	if err != nil {
		if err == ErrNotFound {
			apierr.Respond(c, apierr.New(http.StatusNotFound, "Saved project not found"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	log.Printf("[info] operation=restore_project user_id=%s saved_id=%s project_id=%s id_source=%s",
		user.ID, c.Param("id"), result.ProjectID, result.IDSource)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) download(c *gin.Context) {
	user := auth.CurrentUser(c)
	project, archive, err := h.service.DownloadArchive(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		if err == ErrNotFound {
			apierr.Respond(c, apierr.New(http.StatusNotFound, "Saved project not found"))
			return
		}
		apierr.Respond(c, err)
		return
	}

	filename := SanitizeFileComponent(project.Name) + refine.ArchiveSuffix
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Header("Content-Length", strconv.Itoa(len(archive)))
	c.Data(http.StatusOK, "application/gzip", archive)
}
