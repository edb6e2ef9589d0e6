package constants

// Read queries run through sqlx. Bindvars are written as ? and rebound per driver.
const (
	LeaderboardByGuild = `
		SELECT user_id, total_xp, level, message_count, voice_minutes
		FROM user_levels
		WHERE guild_id = ?
		ORDER BY total_xp DESC, user_id ASC
		LIMIT ?`

	// Members strictly ahead of (total, user): higher total, or equal total and smaller id.
	CountMembersAhead = `
		SELECT COUNT(*)
		FROM user_levels
		WHERE guild_id = ?
		  AND (total_xp > ? OR (total_xp = ? AND user_id < ?))`

	CountMembersInGuild = `SELECT COUNT(*) FROM user_levels WHERE guild_id = ?`

	TicketCountsByStatus = `
		SELECT status, COUNT(*) AS count
		FROM tickets
		WHERE guild_id = ?
		GROUP BY status`
)
