package cleanup

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

// Handler exposes the sweep to an external cron caller, guarded by a
// shared bearer secret.
type Handler struct {
	sweeper    *Sweeper
	cronSecret string
}

func NewHandler(sweeper *Sweeper, cronSecret string) *Handler {
	return &Handler{sweeper: sweeper, cronSecret: cronSecret}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/api/cron/cleanup", h.run)
}

func (h *Handler) run(c *gin.Context) {
	if !h.authorized(c.GetHeader("Authorization")) {
		apierr.Respond(c, apierr.Unauthorized("Invalid cron credential"))
		return
	}

	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) authorized(header string) bool {
	if h.cronSecret == "" {
		return false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}
