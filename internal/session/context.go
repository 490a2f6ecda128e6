package session

import "github.com/satoruisaka/TwistedDebate/internal/core"

// regularWindow is how many trailing messages a non-moderator sees.
const regularWindow = 3

// SelectContext picks the slice of history a participant is shown
// before speaking. Moderators always see the full history so their
// summaries cover everyone; everyone else sees only the last few
// messages. Message content is never truncated for any recipient.
func SelectContext(p core.Participant, history []core.Message) []core.Message {
	if p.IsModerator() || len(history) <= regularWindow {
		return history
	}
	return history[len(history)-regularWindow:]
}
