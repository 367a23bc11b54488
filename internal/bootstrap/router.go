package bootstrap

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dataviz-hub/refine-gateway/config"
	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/cleanup"
	"github.com/dataviz-hub/refine-gateway/internal/cloudsync"
	"github.com/dataviz-hub/refine-gateway/internal/proxy"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
	"github.com/dataviz-hub/refine-gateway/internal/saved"
	"github.com/dataviz-hub/refine-gateway/internal/ui"
)

type RouterDeps struct {
	Config   *config.Config
	DB       *pgxpool.Pool
	Verifier auth.Verifier
	Registry registry.Store
	Client   *refine.Client
	Saved    *saved.Service
	Sync     *cloudsync.Reconciler
	Sweeper  *cleanup.Sweeper
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	cfg := dep.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	healthHandler := NewHealthHandler("refine-gateway", cfg.App.Version, dep.DB)
	healthHandler.RegisterRoutes(r)

	requireUser := auth.RequireUser(dep.Verifier)
	uiAuth := auth.RequireUserOrAnon(dep.Verifier, cfg.App.AllowAnonUI, cfg.App.DevFallbackUserID, cfg.Server.LoginRedirectURL)
	uploadAuth := auth.RequireUserOrAnon(dep.Verifier, cfg.App.AllowAnonCreate, cfg.App.DevFallbackUserID, cfg.Server.LoginRedirectURL)

	savedHandler := saved.NewHandler(dep.Saved, dep.Client)
	savedGroup := r.Group("/api/projects", requireUser)
	savedHandler.Register(savedGroup)

	proxyHandler := proxy.NewHandler(dep.Client, dep.Registry, dep.Sync, cfg.MaxUploadBytes())
	refineGroup := r.Group("/api/refine", refineAuth(requireUser, uploadAuth))
	proxyHandler.Register(refineGroup)

	uiHandler := ui.NewHandler(dep.Client, dep.Registry, cfg.DefaultLang())
	uiGroup := r.Group(ui.PublicPrefix, uiAuth)
	uiHandler.RegisterUI(uiGroup)
	commandGroup := r.Group("/command", uiAuth)
	uiHandler.RegisterCommands(commandGroup)

	cleanupHandler := cleanup.NewHandler(dep.Sweeper, cfg.Cleanup.CronSecret)
	cleanupHandler.Register(r)

	return r
}

// refineAuth routes the upload sub-path through the anon-capable
// middleware while everything else requires a verified user. One wildcard
// route serves the whole /api/refine surface, so this selection cannot be
// expressed as separate gin routes.
func refineAuth(requireUser, uploadAuth gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.Trim(c.Param("path"), "/") == "upload" {
			uploadAuth(c)
			return
		}
		requireUser(c)
	}
}

func corsConfig(origins []string) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", refine.CSRFHeader}
	corsCfg.MaxAge = 12 * time.Hour

	if len(origins) == 1 && origins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}
