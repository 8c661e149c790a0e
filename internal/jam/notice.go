package jam

import (
	"fmt"
	"strings"

	kit "jambot/internal/transport"
)

const parseMarkdown = "Markdown"

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// mention links the user's display name to their profile.
func mention(userID int64, name string) string {
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("user %d", userID)
	}
	return fmt.Sprintf("[%s](tg://user?id=%d)", escapeMarkdown(name), userID)
}

// Notice renders the chat message for an outcome. ok is false when the
// outcome produces no message.
func (o Outcome) Notice(v Vote) (n kit.Notification, ok bool) {
	who := mention(v.UserID, v.DisplayName)
	var text string
	switch o.Kind {
	case OutcomeAssigned:
		text = fmt.Sprintf("%s обрав *%s* 🎶\n 🎭 Вільні ролі: %s", who, o.Option, joinRoles(o.Free))
	case OutcomeCancelled:
		text = fmt.Sprintf("%s відмінив свою участь ❌ (був *%s*)\n 🎭 Вільні ролі: %s", who, o.Option, joinRoles(o.Free))
	case OutcomeRejected:
		text = fmt.Sprintf("%s, *%s* роль вже зайнята. Будь ласка, оберіть іншу 🎭", who, o.Option)
	default:
		return kit.Notification{}, false
	}
	return kit.Notification{
		Target:  kit.ChatTarget{ChatID: o.ChatID},
		Text:    text,
		Options: &kit.SendOptions{ParseMode: parseMarkdown, ReplyTo: o.MessageID},
	}, true
}

// Reminder is the day-of message for one jam.
type Reminder struct {
	PollID    string
	ChatID    int64
	MessageID int
	Occupants map[Role]Occupant
}

func (r Reminder) Text() string {
	var lines []string
	for _, role := range Roles {
		if occ, ok := r.Occupants[role]; ok && occ.Name != "" {
			lines = append(lines, fmt.Sprintf("*%s*: @%s", role, escapeMarkdown(occ.Name)))
		}
	}
	if len(lines) == 0 {
		return "Сьогодні немає участників на джем ❌"
	}
	return "🎶 *Нагадування про Джем сьогодні!* 🎶\n\n" + strings.Join(lines, "\n")
}

func (r Reminder) Notification() kit.Notification {
	return kit.Notification{
		Target:  kit.ChatTarget{ChatID: r.ChatID},
		Text:    r.Text(),
		Options: &kit.SendOptions{ParseMode: parseMarkdown, ReplyTo: r.MessageID},
	}
}
