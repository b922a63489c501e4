package adapter

import (
	"errors"
	"fmt"
	"net/http"

	tele "gopkg.in/telebot.v4"

	kit "praypal/internal/transport"
)

var unreachable = []error{
	tele.ErrBlockedByUser,
	tele.ErrUserIsDeactivated,
	tele.ErrChatNotFound,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
}

// classify marks errors after which no message can ever reach the chat.
func classify(err error) error {
	for _, target := range unreachable {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", kit.ErrRecipientUnreachable, err)
		}
	}
	var te *tele.Error
	if errors.As(err, &te) && te.Code == http.StatusForbidden {
		return fmt.Errorf("%w: %w", kit.ErrRecipientUnreachable, err)
	}
	return err
}
