package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a schedulable unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler drives recurring jobs on cron timers. Runs of the same job
// never overlap: a trigger firing while the previous run is still going
// is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

func New(log *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:  log,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop halts the timers and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// AddJob registers a job with a cron schedule ("@every 10m", "@daily",
// "*/5 * * * *", ...).
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		if err := job.Run(); err != nil {
			s.log.Errorf("job %s failed: %v", job.Name(), err)
			return
		}
		s.log.Debugf("job %s completed", job.Name())
	})
	if err != nil {
		return err
	}
	s.log.Infof("job %s registered on schedule %q", job.Name(), schedule)
	return nil
}
