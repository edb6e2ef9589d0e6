package jobs

import (
	"time"

	"crenors/guildbot/internal/metrics"
)

const (
	// SweepInterval drives voice accrual, poll expiry and booster pruning
	SweepInterval = time.Minute

	// TicketSweepInterval is how often stale tickets are looked for
	TicketSweepInterval = time.Hour
)

// Sweepers are the state machines that own time-based transitions
type Sweepers struct {
	Voice    VoiceAccruer
	Boosters BoosterPruner
	Polls    PollSweeper
	Tickets  TicketSweeper
}

// InitializeJobs registers every sweep on a new scheduler. The caller starts it.
func InitializeJobs(m *metrics.MetricsRegistry, s Sweepers) (*Scheduler, error) {
	sched := NewScheduler(m)

	regs := []struct {
		interval time.Duration
		job      Job
	}{
		{SweepInterval, NewVoiceAccrualJob(s.Voice)},
		{SweepInterval, NewPollExpiryJob(s.Polls)},
		{SweepInterval, NewBoosterPruneJob(s.Boosters)},
		{TicketSweepInterval, NewTicketAutoCloseJob(s.Tickets)},
	}
	for _, r := range regs {
		if err := sched.Every(r.interval, r.job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
