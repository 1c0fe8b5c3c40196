package dispatch

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/ahfmawlrl/sns-solution/pkg/logging"
)

// Scheduler fires named periodic triggers on fixed intervals. Trigger
// functions must be idempotent: a horizontally scaled deployment means the
// same trigger can fire on more than one instance.
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger
}

func NewScheduler(logger logging.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Add registers a named trigger with a cron spec ("@every 60s" or
// five-field cron).
func (s *Scheduler) Add(name, spec string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.WithField("trigger", name).Debug("Periodic trigger fired")
		fn()
	})
	if err != nil {
		return fmt.Errorf("register trigger %s: %w", name, err)
	}
	return nil
}

// Start begins firing triggers in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts trigger firing, waiting for running triggers to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
