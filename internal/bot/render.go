package bot

import (
	"fmt"
	"strings"

	"crenors/guildbot/internal/constants"
	"crenors/guildbot/internal/models/dtos"
	gormModels "crenors/guildbot/internal/models/gorm"
	"crenors/guildbot/internal/providers"
)

const (
	barWidth = 20

	defaultPanelTitle       = "🎫 Support Tickets"
	defaultPanelDescription = "Click the button below to open a private support ticket."
)

// PollMessage renders an active poll. Up to MaxPollButtons options get a
// button each, longer polls use a select menu. Repeated options are rendered
// once since custom ids and menu values must be unique.
func PollMessage(poll *gormModels.Poll) providers.OutboundMessage {
	id := poll.ID.String()
	options := distinct(poll.Options)

	var b strings.Builder
	fmt.Fprintf(&b, "📊 **Poll**\n%s\n", poll.Question)
	if poll.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires <t:%d:R>\n", poll.ExpiresAt.Unix())
	}
	fmt.Fprintf(&b, "Poll ID: %s", id)

	out := providers.OutboundMessage{Content: b.String()}
	if len(options) <= constants.MaxPollButtons {
		row := make([]providers.Button, 0, len(options))
		for _, o := range options {
			row = append(row, providers.Button{
				CustomID: constants.CustomIDPollVote + id + "_" + o,
				Label:    o,
				Style:    providers.ButtonSecondary,
			})
		}
		out.ButtonRows = append(out.ButtonRows, row)
	} else {
		out.Select = &providers.SelectMenu{
			CustomID:    constants.CustomIDPollVote + id,
			Placeholder: "Select an option",
			Options:     options,
		}
	}
	out.ButtonRows = append(out.ButtonRows, []providers.Button{
		{CustomID: constants.CustomIDPollResults + id, Label: "📊 Results", Style: providers.ButtonPrimary},
		{CustomID: constants.CustomIDPollEnd + id, Label: "🔒 End Poll", Style: providers.ButtonDanger},
	})
	return out
}

func distinct(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}

// EndedPollMessage replaces the poll message once it ended. Components are removed.
func EndedPollMessage(ev dtos.PollEndedEvent) providers.OutboundMessage {
	var b strings.Builder
	b.WriteString(constants.MsgPollEndedHeader)
	if ev.Tally != nil {
		b.WriteString("\n")
		b.WriteString(ResultsText(ev.Tally))
	}
	fmt.Fprintf(&b, "\nPoll ID: %s - Ended", ev.PollID)
	return providers.OutboundMessage{Content: b.String(), ClearComponents: true}
}

// ResultsText renders one bar per option followed by the vote total
func ResultsText(t *dtos.PollTally) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", t.Question)
	for _, r := range t.Results {
		filled := r.Percentage / 5
		if filled > barWidth {
			filled = barWidth
		}
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		fmt.Fprintf(&b, "%s\n%s %d votes (%d%%)\n", r.Option, bar, r.Votes, r.Percentage)
	}
	fmt.Fprintf(&b, "Total Votes: %d", t.TotalVotes)
	return b.String()
}

func ticketOpenButtons() [][]providers.Button {
	return [][]providers.Button{{
		{CustomID: constants.CustomIDTicketClose, Label: "🔒 Close Ticket", Style: providers.ButtonDanger},
		{CustomID: constants.CustomIDTicketDelete, Label: "🗑️ Delete Ticket", Style: providers.ButtonSecondary},
	}}
}

func ticketClosedButtons() [][]providers.Button {
	return [][]providers.Button{{
		{CustomID: constants.CustomIDTicketReopen, Label: "🔓 Reopen Ticket", Style: providers.ButtonSuccess},
	}}
}

// TicketPanelMessage is the message members press to open a ticket
func TicketPanelMessage(req dtos.TicketPanelRequest) providers.OutboundMessage {
	title := req.Title
	if title == "" {
		title = defaultPanelTitle
	}
	description := req.Description
	if description == "" {
		description = defaultPanelDescription
	}
	return providers.OutboundMessage{
		Content: fmt.Sprintf("**%s**\n%s", title, description),
		ButtonRows: [][]providers.Button{{
			{CustomID: constants.CustomIDTicketCreate, Label: "🎫 Create Ticket", Style: providers.ButtonPrimary},
		}},
	}
}
