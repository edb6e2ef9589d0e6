package constants

// Ephemeral replies sent back to the member who pressed a component
const (
	MsgPollNotFound     = "Poll not found."
	MsgPollEnded        = "This poll has ended."
	MsgPollRoleRequired = "You do not have the required role to vote in this poll."
	MsgAlreadyVoted     = "You have already voted in this poll."
	MsgInvalidOption    = "That is not an option in this poll."
	MsgVoteRecorded     = "Your vote for **%s** has been recorded!"
	MsgPollEndForbidden = "You need the Manage Messages permission to end polls."
	MsgPollEndedOK      = "Poll has been ended."

	MsgTicketExists       = "You already have an open ticket: <#%s>"
	MsgTicketCreated      = "Your ticket has been created: <#%s>"
	MsgTicketNotFound     = "This is not a ticket channel."
	MsgTicketNotOpen      = "This ticket is not open."
	MsgTicketNotClosed    = "This ticket is not closed."
	MsgTicketReopened     = "Ticket reopened."
	MsgTicketOtherOpen    = "You already have another open ticket."
	MsgTicketDeleting     = "Deleting this ticket."
	MsgTicketsDisabled    = "Ticket system is disabled."
	MsgPollsDisabled      = "Polls are disabled."
	MsgSomethingWentWrong = "Something went wrong, please try again later."
	MsgUnknownInteraction = "This button is no longer supported."
)

// Channel messages
const (
	MsgLevelUp          = "🎉 Congratulations <@%s>! You reached **level %d** (%s XP)."
	MsgTicketWelcome    = "Welcome <@%s>! Support will be with you shortly. Describe your issue below."
	MsgTicketClosed     = "🔒 Ticket closed by <@%s>."
	MsgTicketAutoClose  = "⏰ This ticket was opened %s. Please close it if the issue is resolved."
	MsgTranscriptHeader = "Transcript for ticket #%d (<@%s>)"
	MsgPollEndedHeader  = "🔒 **Poll Ended**"
)
