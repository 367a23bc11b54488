// Package cleanup removes stale live backend projects: registry entries
// whose last access is older than the configured horizon are deleted
// from the backend and then dropped from the registry.
package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/dataviz-hub/refine-gateway/internal/refine"
	"github.com/dataviz-hub/refine-gateway/internal/registry"
)

// Report summarizes one sweep.
type Report struct {
	Checked int `json:"checked"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweeper deletes stale projects. A backend delete failure leaves the
// registry entry in place so a later sweep retries it.
type Sweeper struct {
	registry registry.Store
	client   *refine.Client
	maxAge   time.Duration
}

func NewSweeper(reg registry.Store, client *refine.Client, maxAge time.Duration) *Sweeper {
	return &Sweeper{registry: reg, client: client, maxAge: maxAge}
}

func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	stale, err := s.registry.ListStale(ctx, s.maxAge)
	if err != nil {
		return Report{}, err
	}

	report := Report{Checked: len(stale)}
	headers := s.client.ServiceHeaders()

	for _, projectID := range stale {
		if err := s.client.DeleteProject(ctx, headers.Clone(), projectID); err != nil {
			report.Failed++
			log.Printf("[warn] operation=cleanup_sweep project_id=%s stage=backend_delete error=%v", projectID, err)
			continue
		}
		if err := s.registry.RemoveAny(ctx, projectID); err != nil {
			report.Failed++
			log.Printf("[warn] operation=cleanup_sweep project_id=%s stage=registry_remove error=%v", projectID, err)
			continue
		}
		report.Deleted++
	}

	log.Printf("[info] operation=cleanup_sweep checked=%d deleted=%d failed=%d", report.Checked, report.Deleted, report.Failed)
	return report, nil
}
