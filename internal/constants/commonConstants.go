package constants

type (
	CachePrefix string
	APIStatus   string
)

const (
	APIStatusOk    APIStatus = "ok"
	APIStatusError APIStatus = "error"

	CachePrefixCooldown    CachePrefix = "XP_COOLDOWN_"
	CachePrefixLeaderboard CachePrefix = "LEADERBOARD_"
)

// Component custom ids. Poll ids are appended after the prefix, and for vote
// buttons the option follows the id: poll_vote_<id>_<option>.
const (
	CustomIDPollVote    = "poll_vote_"
	CustomIDPollResults = "poll_results_"
	CustomIDPollEnd     = "poll_end_"

	CustomIDTicketCreate = "ticket_create"
	CustomIDTicketClose  = "ticket_close"
	CustomIDTicketReopen = "ticket_reopen"
	CustomIDTicketDelete = "ticket_delete"
)

const (
	// LevelSize is the XP needed per level.
	LevelSize = 1000

	MinPollOptions = 2
	MaxPollOptions = 25

	// MaxPollButtons is the most options rendered as buttons; more use a select menu.
	MaxPollButtons = 5

	TranscriptMessageLimit = 100
	TranscriptFailed       = "Failed to generate transcript"

	LeaderboardDefaultLimit = 10
	LeaderboardMaxLimit     = 100
)
