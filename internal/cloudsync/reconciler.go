// Package cloudsync reconciles a user's durable archive snapshots with
// the live backend: saved projects missing from the backend are imported
// back in the background, throttled per user.
package cloudsync

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dataviz-hub/refine-gateway/internal/auth"
	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/saved"
)

const (
	syncNameMaxRunes = 40
	defaultImportCap = 3
	runTimeout       = 5 * time.Minute
)

// Reconciler re-imports missing saved projects. Kick never blocks or
// fails the triggering request; all work happens on a detached goroutine
// behind a per-user limiter.
type Reconciler struct {
	service   *saved.Service
	client    *refine.Client
	interval  time.Duration
	importCap int
	limiters  sync.Map
}

func New(service *saved.Service, client *refine.Client, interval time.Duration, importCap int) *Reconciler {
	if importCap <= 0 {
		importCap = defaultImportCap
	}
	return &Reconciler{
		service:   service,
		client:    client,
		interval:  interval,
		importCap: importCap,
	}
}

// Kick schedules a reconciliation pass for the user unless one ran too
// recently.
func (r *Reconciler) Kick(user auth.User) {
	if user.ID == "" {
		return
	}
	limiter := r.limiterFor(user.ID)
	if !limiter.Allow() {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if err := r.run(ctx, user); err != nil {
			log.Printf("[warn] operation=cloud_sync user_id=%s error=%v", user.ID, err)
		}
	}()
}

func (r *Reconciler) limiterFor(userID string) *rate.Limiter {
	if existing, ok := r.limiters.Load(userID); ok {
		return existing.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Every(r.interval), 1)
	actual, _ := r.limiters.LoadOrStore(userID, limiter)
	return actual.(*rate.Limiter)
}

func (r *Reconciler) run(ctx context.Context, user auth.User) error {
	savedProjects, err := r.service.List(ctx, user)
	if err != nil {
		return err
	}
	if len(savedProjects) == 0 {
		return nil
	}

	headers := r.client.ServiceHeaders()
	live, err := r.client.AllProjectMetadata(ctx, headers)
	if err != nil {
		return err
	}
	liveNames := make(map[string]bool, len(live))
	for _, meta := range live {
		liveNames[meta.Name] = true
	}

	imported := 0
	for _, project := range savedProjects {
		if imported >= r.importCap {
			log.Printf("[info] operation=cloud_sync user_id=%s result=cap_reached imported=%d", user.ID, imported)
			break
		}

		syncName := SyncName(project.Name, project.ID)
		if liveNames[syncName] {
			continue
		}

		_, archive, err := r.service.DownloadArchive(ctx, user, project.ID)
		if err != nil {
			log.Printf("[warn] operation=cloud_sync_import user_id=%s saved_id=%s stage=download error=%v", user.ID, project.ID, err)
			continue
		}

		liveID, idSource, err := r.service.ImportArchive(ctx, user, syncName, archive, headers)
		if err != nil {
			log.Printf("[warn] operation=cloud_sync_import user_id=%s saved_id=%s stage=import error=%v", user.ID, project.ID, err)
			continue
		}

		imported++
		log.Printf("[info] operation=cloud_sync_import user_id=%s saved_id=%s project_id=%s id_source=%s", user.ID, project.ID, liveID, idSource)
	}
	return nil
}

// SyncName derives the deterministic backend name used to detect whether
// a saved project already has a live counterpart.
func SyncName(displayName, savedID string) string {
	base := saved.SanitizeFileComponent(displayName)
	runes := []rune(base)
	if len(runes) > syncNameMaxRunes {
		base = string(runes[:syncNameMaxRunes])
	}
	base = strings.TrimRight(base, "-")
	suffix := savedID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}
