package bot

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ryadomlab/ryadom/internal/store"
)

// Sender delivers text to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// Escalator is told when a message required a crisis response. It
// receives the concrete indicators the inference flagged and the
// message that triggered them.
type Escalator interface {
	NotifyCrisis(user *store.User, indicators []string, message string)
}

// adminNotifier forwards crisis signals to the configured admin chats.
// Delivery is best effort: a failed notification never affects the
// user's turn.
type adminNotifier struct {
	sender  Sender
	chatIDs []int64
	log     zerolog.Logger
}

func NewAdminNotifier(sender Sender, chatIDs []int64, logger zerolog.Logger) Escalator {
	return &adminNotifier{
		sender:  sender,
		chatIDs: chatIDs,
		log:     logger.With().Str("component", "escalation").Logger(),
	}
}

func (n *adminNotifier) NotifyCrisis(user *store.User, indicators []string, message string) {
	if len(n.chatIDs) == 0 {
		n.log.Warn().Int64("user_id", user.ID).Msg("crisis detected but no admin chats configured")
		return
	}

	var b strings.Builder
	b.WriteString("⚠️ Кризисный сигнал\n")
	name := user.Name
	if name == "" {
		name = "без имени"
	}
	fmt.Fprintf(&b, "Пользователь: %s (id %d, chat %d)\n", name, user.ID, user.ChatID)
	if len(indicators) > 0 {
		fmt.Fprintf(&b, "Признаки: %s\n", strings.Join(indicators, "; "))
	}
	if message != "" {
		fmt.Fprintf(&b, "Сообщение: %s\n", message)
	}
	text := b.String()

	for _, chatID := range n.chatIDs {
		if err := n.sender.SendMessage(chatID, text); err != nil {
			n.log.Warn().Err(err).Int64("admin_chat", chatID).Msg("crisis notification failed")
		}
	}
	n.log.Warn().Int64("user_id", user.ID).Msg("crisis escalated")
}
