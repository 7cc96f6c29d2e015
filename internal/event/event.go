// Package event normalizes heterogeneous Telegram updates into one tagged
// event representation with a stable conversation identifier.
package event

import (
	"strings"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
)

// Event is the internal representation of one inbound update.
type Event interface {
	isEvent()
	// Kind names the event shape for logging and metrics.
	Kind() string
}

// Command is a slash command such as /start.
type Command struct {
	Name string
}

// Text is a free-form text message.
type Text struct {
	Body string
}

// ButtonPress is an inline keyboard callback.
type ButtonPress struct {
	Payload    string
	CallbackID string
}

// LocationShared is a shared geolocation.
type LocationShared struct {
	Coord geo.Coordinate
}

// PreCheckout is Telegram's pre-checkout query before charging the customer.
type PreCheckout struct {
	ID string
}

// PaymentCompleted is the successful-payment notice.
type PaymentCompleted struct {
	TotalKopecks int64
	Currency     string
}

func (Command) isEvent()          {}
func (Text) isEvent()             {}
func (ButtonPress) isEvent()      {}
func (LocationShared) isEvent()   {}
func (PreCheckout) isEvent()      {}
func (PaymentCompleted) isEvent() {}

func (Command) Kind() string          { return "command" }
func (Text) Kind() string             { return "text" }
func (ButtonPress) Kind() string      { return "button" }
func (LocationShared) Kind() string   { return "location" }
func (PreCheckout) Kind() string      { return "pre_checkout" }
func (PaymentCompleted) Kind() string { return "payment" }

// IsReset reports whether the event force-resets the conversation to the
// start state regardless of any stored session.
func IsReset(ev Event) bool {
	cmd, ok := ev.(Command)
	return ok && cmd.Name == "/start"
}

// Normalize maps a telebot update onto (conversation identifier, Event).
// Updates without a resolvable chat fail with an unroutable-event error
// instead of guessing.
func Normalize(c telebot.Context) (int64, Event, error) {
	if c == nil {
		return 0, nil, apperrors.NewUnroutableEventError("nil context")
	}

	chatID, ok := conversationID(c)
	if !ok {
		return 0, nil, apperrors.NewUnroutableEventError("no chat or sender in update")
	}

	if q := c.PreCheckoutQuery(); q != nil {
		return chatID, PreCheckout{ID: q.ID}, nil
	}

	if cb := c.Callback(); cb != nil {
		payload := strings.TrimPrefix(cb.Data, "\f")
		return chatID, ButtonPress{Payload: payload, CallbackID: cb.ID}, nil
	}

	msg := c.Message()
	if msg == nil {
		return 0, nil, apperrors.NewUnroutableEventError("update carries no message")
	}

	switch {
	case msg.Payment != nil:
		return chatID, PaymentCompleted{
			TotalKopecks: int64(msg.Payment.Total),
			Currency:     msg.Payment.Currency,
		}, nil
	case msg.Location != nil:
		return chatID, LocationShared{
			Coord: geo.Coordinate{
				Lat: float64(msg.Location.Lat),
				Lon: float64(msg.Location.Lng),
			},
		}, nil
	case strings.HasPrefix(msg.Text, "/"):
		name := msg.Text
		if idx := strings.IndexAny(name, " @"); idx > 0 {
			name = name[:idx]
		}
		return chatID, Command{Name: name}, nil
	default:
		return chatID, Text{Body: msg.Text}, nil
	}
}

func conversationID(c telebot.Context) (int64, bool) {
	if chat := c.Chat(); chat != nil {
		return chat.ID, true
	}

	// Pre-checkout queries carry no chat; fall back to the sender, which in a
	// private conversation matches the chat identifier.
	if sender := c.Sender(); sender != nil {
		return sender.ID, true
	}

	return 0, false
}
