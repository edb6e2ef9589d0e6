package dtos

type TicketStats struct {
	GuildID string `json:"guildId"`
	Total   int    `json:"total"`
	Open    int    `json:"open"`
	Closed  int    `json:"closed"`
	Deleted int    `json:"deleted"`
}

type TicketPanelRequest struct {
	ChannelID   string `json:"channelId"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type TicketSettingsRequest struct {
	Category          *string `json:"category,omitempty"`
	TranscriptChannel *string `json:"transcriptChannel,omitempty"`
	AutoCloseEnabled  *bool   `json:"autoCloseEnabled,omitempty"`
	AutoCloseHours    *int    `json:"autoCloseHours,omitempty"`
}

type TicketPanelResponse struct {
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
}
