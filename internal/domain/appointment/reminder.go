package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const reminderRunTimeout = 2 * time.Minute

// ReminderJob runs SendReminders on a cron schedule.
type ReminderJob struct {
	svc    *Service
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewReminderJob schedules reminders with a standard five-field cron spec.
func NewReminderJob(svc *Service, spec string, logger zerolog.Logger) (*ReminderJob, error) {
	j := &ReminderJob{
		svc:    svc,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.With().Str("job", "appointment-reminders").Logger(),
	}
	if _, err := j.cron.AddFunc(spec, j.Run); err != nil {
		return nil, fmt.Errorf("parse reminder schedule %q: %w", spec, err)
	}
	return j, nil
}

func (j *ReminderJob) Start() {
	j.cron.Start()
	j.logger.Info().Msg("reminder job scheduled")
}

// Stop halts the schedule and waits for a running pass to finish or ctx to end.
func (j *ReminderJob) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// Run executes one reminder pass.
func (j *ReminderJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
	defer cancel()

	start := time.Now()
	sent, err := j.svc.SendReminders(ctx)
	if err != nil {
		j.logger.Error().Err(err).Int("sent", sent).Msg("reminder pass incomplete")
		return
	}
	j.logger.Info().Int("sent", sent).Dur("elapsed", time.Since(start)).Msg("reminders sent")
}
