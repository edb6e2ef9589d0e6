package jobs

import (
	"context"
	"time"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/logging"
)

type (
	// VoiceAccruer is implemented by *services.LevelingService
	VoiceAccruer interface {
		VoiceAccrual(ctx context.Context) (int, error)
	}

	// BoosterPruner is implemented by *services.LevelingService
	BoosterPruner interface {
		PruneExpiredBoosters(ctx context.Context) (int, error)
	}

	// PollSweeper is implemented by *services.PollService
	PollSweeper interface {
		SweepExpired(ctx context.Context) (int, error)
	}

	// TicketSweeper is implemented by *services.TicketService
	TicketSweeper interface {
		SweepAutoClose(ctx context.Context) (int, error)
	}
)

// SweepJob runs one state machine sweep and logs how many entities it touched.
// Per-entity failures are handled inside the sweep; the returned error only
// marks the run as partially failed.
type SweepJob struct {
	name  string
	noun  string
	sweep func(ctx context.Context) (int, error)
}

func (j *SweepJob) Name() string { return j.name }

func (j *SweepJob) Run(ctx context.Context) error {
	start := time.Now()
	n, err := j.sweep(ctx)
	if n > 0 {
		logging.Info("Sweep finished", "job", j.name, j.noun, n, "duration_ms", time.Since(start).Milliseconds())
	}
	return err
}

func NewVoiceAccrualJob(l VoiceAccruer) *SweepJob {
	return &SweepJob{name: constants.JobVoiceAccrual, noun: "awards", sweep: l.VoiceAccrual}
}

func NewBoosterPruneJob(l BoosterPruner) *SweepJob {
	return &SweepJob{name: constants.JobBoosterPrune, noun: "pruned", sweep: l.PruneExpiredBoosters}
}

func NewPollExpiryJob(p PollSweeper) *SweepJob {
	return &SweepJob{name: constants.JobPollExpiry, noun: "ended", sweep: p.SweepExpired}
}

func NewTicketAutoCloseJob(t TicketSweeper) *SweepJob {
	return &SweepJob{name: constants.JobTicketAutoClose, noun: "warned", sweep: t.SweepAutoClose}
}
