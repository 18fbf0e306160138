// -----------------------------------------------------------------------
// Janitor - scheduled recovery of stale jobs and temp artifact sweep
// -----------------------------------------------------------------------

package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/attesto/internal/common"
	"github.com/ternarybob/attesto/internal/interfaces"
	"github.com/ternarybob/attesto/internal/models"
)

// tempMaxAge is how long rendered page artifacts survive in the temp dir.
const tempMaxAge = 24 * time.Hour

// Service recovers jobs orphaned by worker crashes and sweeps rendered page
// artifacts out of the temp dir. A processing job whose worker died stays
// processing forever without this; the janitor fails it as stale and retries
// it when attempts remain.
type Service struct {
	logger         arbor.ILogger
	config         *common.JanitorConfig
	jobs           interfaces.JobStorage
	tempDir        string
	staleThreshold time.Duration
	cron           *cron.Cron
}

func NewService(logger arbor.ILogger, config *common.JanitorConfig, jobs interfaces.JobStorage, tempDir string) *Service {
	threshold := 30 * time.Minute
	if d, err := time.ParseDuration(config.StaleThreshold); err == nil && d > 0 {
		threshold = d
	}
	return &Service{
		logger:         logger,
		config:         config,
		jobs:           jobs,
		tempDir:        tempDir,
		staleThreshold: threshold,
		cron:           cron.New(),
	}
}

// Start schedules the maintenance run. No-op when disabled.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Debug().Msg("Janitor disabled")
		return nil
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/10 * * * *"
	}
	if _, err := s.cron.AddFunc(schedule, s.Run); err != nil {
		return err
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", schedule).
		Str("stale_threshold", s.staleThreshold.String()).
		Msg("Janitor started")
	return nil
}

// Stop halts the schedule.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Run executes one maintenance pass.
func (s *Service) Run() {
	ctx := context.Background()
	requeued, failed := s.RecoverStaleJobs(ctx, time.Now())
	swept := s.SweepTempDir(time.Now())

	if requeued+failed+swept > 0 {
		s.logger.Info().
			Int("requeued", requeued).
			Int("exhausted", failed).
			Int("swept", swept).
			Msg("Janitor pass completed")
	}
}

// RecoverStaleJobs fails processing jobs whose worker went silent past the
// stale threshold and retries those with attempts remaining. Returns the
// number requeued and the number left failed.
func (s *Service) RecoverStaleJobs(ctx context.Context, now time.Time) (requeued, exhausted int) {
	jobs, err := s.jobs.List(ctx, &interfaces.JobListOptions{Status: models.JobStatusProcessing})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list processing jobs")
		return 0, 0
	}

	for _, job := range jobs {
		started := job.CreatedAt
		if job.StartedAt != nil {
			started = *job.StartedAt
		}
		if now.Sub(started) < s.staleThreshold {
			continue
		}

		if err := s.jobs.Fail(ctx, job.ID, "stale: worker stopped reporting"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to fail stale job")
			continue
		}

		if _, err := s.jobs.Retry(ctx, job.ID); err != nil {
			if errors.Is(err, models.ErrAttemptsExhausted) {
				exhausted++
				s.logger.Warn().Str("job_id", job.ID).Msg("Stale job out of attempts, left failed")
				continue
			}
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue stale job")
			continue
		}
		requeued++
		s.logger.Info().
			Str("job_id", job.ID).
			Str("worker_id", job.WorkerID).
			Msg("Stale job requeued")
	}
	return requeued, exhausted
}

// RecoverInterrupted requeues every processing job, regardless of age.
// Run once at startup: the previous process is gone, so any job still
// marked processing was orphaned by its shutdown.
func (s *Service) RecoverInterrupted(ctx context.Context) (requeued, exhausted int, err error) {
	jobs, err := s.jobs.List(ctx, &interfaces.JobListOptions{Status: models.JobStatusProcessing})
	if err != nil {
		return 0, 0, err
	}

	for _, job := range jobs {
		if err := s.jobs.Fail(ctx, job.ID, "interrupted: server restarted during processing"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to fail interrupted job")
			continue
		}
		if _, err := s.jobs.Retry(ctx, job.ID); err != nil {
			if errors.Is(err, models.ErrAttemptsExhausted) {
				exhausted++
				continue
			}
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue interrupted job")
			continue
		}
		requeued++
	}
	return requeued, exhausted, nil
}

// SweepTempDir removes rendered page artifacts older than tempMaxAge.
// Only files matching the renderer's naming survive consideration, so a
// shared system temp dir is never damaged.
func (s *Service) SweepTempDir(now time.Time) int {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if !sweepable(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < tempMaxAge {
			continue
		}
		path := filepath.Join(s.tempDir, entry.Name())
		if entry.IsDir() {
			err = os.RemoveAll(path)
		} else {
			err = os.Remove(path)
		}
		if err == nil {
			removed++
		}
	}
	return removed
}

// sweepable matches artifacts the pipeline writes: per-document render
// directories and extracted content streams.
func sweepable(entry os.DirEntry) bool {
	name := entry.Name()
	if entry.IsDir() {
		return strings.HasPrefix(name, "pages_") || strings.HasPrefix(name, "content_")
	}
	return strings.HasPrefix(name, "Content_page_")
}
