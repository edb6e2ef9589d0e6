package dtos

import "time"

type PollOptionResult struct {
	Option     string `json:"option"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// PollTally is the vote count of a poll in option order
type PollTally struct {
	PollID     string             `json:"pollId"`
	Question   string             `json:"question"`
	Ended      bool               `json:"ended"`
	ExpiresAt  *time.Time         `json:"expiresAt,omitempty"`
	TotalVotes int                `json:"totalVotes"`
	Results    []PollOptionResult `json:"results"`
}

// PollEndedEvent is delivered once, on a poll's transition to ended
type PollEndedEvent struct {
	PollID    string
	GuildID   string
	ChannelID string
	MessageID string
	Expired   bool
	Tally     *PollTally
}

type CreatePollRequest struct {
	GuildID   string   `json:"guildId"`
	ChannelID string   `json:"channelId"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`

	// DurationHours nil falls back to the configured default; 0 means no expiry.
	DurationHours *float64 `json:"durationHours,omitempty"`
}

type PollSettingsRequest struct {
	DefaultDuration *float64 `json:"defaultDuration,omitempty"`
	AllowMultiple   *bool    `json:"allowMultiple,omitempty"`
	RequireRole     *string  `json:"requireRole,omitempty"`
}

// PollResponse describes a stored poll without its votes
type PollResponse struct {
	ID        string     `json:"id"`
	GuildID   string     `json:"guildId"`
	ChannelID string     `json:"channelId"`
	MessageID string     `json:"messageId,omitempty"`
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}
