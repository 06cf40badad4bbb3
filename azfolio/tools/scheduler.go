package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/ezquant/azfolio/azfolio/tools/log"
)

type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs named jobs in the order they were added. Failed jobs stay queued
// so a later Run retries them.
type Scheduler struct {
	jobs []Job
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(name string, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Run: run})
}

// Pending returns the names of the queued jobs.
func (s *Scheduler) Pending() []string {
	return lo.Map(s.jobs, func(job Job, _ int) string {
		return job.Name
	})
}

// Run executes every queued job and returns the joined errors of the failed ones.
func (s *Scheduler) Run(ctx context.Context) error {
	var errs []error
	s.jobs = lo.Filter(s.jobs, func(job Job, _ int) bool {
		if err := ctx.Err(); err != nil {
			return true
		}
		if err := job.Run(ctx); err != nil {
			log.WithError(err).Errorf("job %s failed", job.Name)
			errs = append(errs, fmt.Errorf("%s: %w", job.Name, err))
			return true
		}
		return false
	})

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
