/*
scheduler.go - Automated monthly distribution scheduler

PURPOSE:
  Refills every organization's allocation pools on a cron schedule, and
  runs small maintenance jobs (rate limiter pruning) on fixed intervals.

DESIGN:
  - gocron scheduler in UTC, one singleton job per task
  - Each run walks every organization; one failing organization is logged
    and does not stop the others
  - Results feed the distribution metrics

CONFIGURATION:
  - DISTRIBUTION_CRON: Five-field cron expression (default: "0 0 1 * *",
    midnight on the first of the month)
  - SCHEDULER_ENABLED: Whether the server starts the scheduler (default: true)

USAGE:
  scheduler, err := NewDistributionScheduler(svc, cfg.DistributionCron, metrics, log)
  scheduler.Every("prune-rate-limits", 10*time.Minute, limiter.Prune)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerDistribution endpoint (manual distribution)
  - budget/service.go: DistributeMonthlyPoints
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/warp/recognition-engine/budget"
)

const distributionTimeout = 10 * time.Minute

// DistributionScheduler handles automated monthly distribution.
type DistributionScheduler struct {
	svc       *Services
	metrics   *Metrics
	log       logrus.FieldLogger
	scheduler gocron.Scheduler
}

// NewDistributionScheduler registers the distribution job. An invalid cron
// expression is an error.
func NewDistributionScheduler(svc *Services, cron string, metrics *Metrics, log logrus.FieldLogger) (*DistributionScheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	ds := &DistributionScheduler{
		svc:       svc,
		metrics:   metrics,
		log:       log.WithField("component", "scheduler"),
		scheduler: s,
	}

	_, err = s.NewJob(
		gocron.CronJob(cron, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), distributionTimeout)
			defer cancel()
			if _, err := ds.RunOnce(ctx); err != nil {
				ds.log.WithError(err).Error("scheduled distribution finished with errors")
			}
		}),
		gocron.WithName("monthly-distribution"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule distribution %q: %w", cron, err)
	}
	return ds, nil
}

// Every registers fn to run every d.
func (ds *DistributionScheduler) Every(name string, d time.Duration, fn func()) error {
	_, err := ds.scheduler.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins the scheduler.
func (ds *DistributionScheduler) Start() {
	ds.scheduler.Start()
	ds.log.WithField("jobs", len(ds.scheduler.Jobs())).Info("scheduler started")
}

// Stop waits for running jobs and stops the scheduler.
func (ds *DistributionScheduler) Stop() error {
	if err := ds.scheduler.Shutdown(); err != nil {
		return err
	}
	ds.log.Info("scheduler stopped")
	return nil
}

// RunOnce distributes monthly points to every organization. Failed
// organizations are reported in the joined error; the others still run.
func (ds *DistributionScheduler) RunOnce(ctx context.Context) ([]budget.DistributionResult, error) {
	orgs, err := ds.svc.Store.ListOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	var (
		results []budget.DistributionResult
		errs    []error
	)
	for _, org := range orgs {
		res, err := ds.svc.Budget.DistributeMonthlyPoints(ctx, org.ID)
		if ds.metrics != nil {
			ds.metrics.RecordDistribution(err == nil)
		}
		if err != nil {
			ds.log.WithError(err).WithField("organization_id", org.ID).Error("distribution failed")
			errs = append(errs, fmt.Errorf("organization %s: %w", org.ID, err))
			continue
		}
		results = append(results, res)
	}

	ds.log.WithFields(logrus.Fields{
		"organizations": len(orgs),
		"failed":        len(errs),
	}).Info("distribution run complete")
	return results, errors.Join(errs...)
}
