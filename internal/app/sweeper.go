/**
 * @description
 * Cron scheduler for the card expiry sweep. Runs SweepExpiredCards on a
 * configurable schedule so ACTIVE cards past their expiry do not depend on a
 * read to transition.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper schedules the periodic expiry sweep.
type Sweeper struct {
	cron    *cron.Cron
	service *Service
	spec    string
}

// NewSweeper creates a sweeper running on the given cron spec.
func NewSweeper(service *Service, spec string) *Sweeper {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Sweeper{
		cron:    c,
		service: service,
		spec:    spec,
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() {
	if _, err := s.cron.AddFunc(s.spec, s.runSweep); err != nil {
		log.Printf("level=error component=sweeper msg=\"failed to schedule expiry sweep\" spec=%s err=%v", s.spec, err)
		return
	}
	log.Printf("level=info component=sweeper msg=\"scheduled expiry sweep\" spec=%s", s.spec)
	s.cron.Start()
}

// Stop gracefully stops the scheduler and returns a context that is done when
// running jobs have finished.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.service.SweepExpiredCards(ctx); err != nil {
		log.Printf("level=error component=sweeper msg=\"expiry sweep failed\" err=%v", err)
	}
}
