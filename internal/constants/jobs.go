package constants

// Scheduled sweep names, used as metric labels and log prefixes
const (
	JobVoiceAccrual    = "voice_accrual"
	JobPollExpiry      = "poll_expiry"
	JobTicketAutoClose = "ticket_auto_close"
	JobBoosterPrune    = "booster_prune"
)
