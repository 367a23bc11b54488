package cleanup

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the stale-project sweep on a cron schedule in-process,
// for deployments without an external cron caller.
type Scheduler struct {
	sweeper *Sweeper
	spec    string
	cron    *cron.Cron
}

func NewScheduler(sweeper *Sweeper, spec string) *Scheduler {
	return &Scheduler{sweeper: sweeper, spec: spec}
}

// Start registers the sweep job. A bad schedule spec is logged and the
// scheduler stays off; the HTTP cleanup endpoints still work.
func (s *Scheduler) Start() {
	c := cron.New(cron.WithSeconds())

	_, err := c.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.sweeper.Sweep(ctx); err != nil {
			log.Printf("[error] operation=cleanup_schedule error=%v", err)
		}
	})
	if err != nil {
		log.Printf("[error] operation=cleanup_schedule schedule=%q error=%v", s.spec, err)
		return
	}

	log.Printf("[info] operation=cleanup_schedule schedule=%q status=started", s.spec)
	c.Start()
	s.cron = c
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
