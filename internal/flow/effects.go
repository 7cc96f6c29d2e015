// Package flow implements the conversation state machine of the ordering bot.
package flow

import (
	"time"

	"github.com/avolkov-go/pizzeria-bot/internal/geo"
)

// Button is a keyboard button definition; the transport layer renders it into
// Telegram markup.
type Button struct {
	Text            string
	Data            string
	RequestLocation bool
}

// Effect is one outbound action produced by a state handler. Effects are
// plain data so handlers stay testable without a live transport; the bot
// layer executes them in order and persists the new state only after every
// effect succeeded.
type Effect interface {
	isEffect()
}

// SendMessage sends a text message to the conversation, optionally with an
// inline or reply keyboard.
type SendMessage struct {
	Text           string
	Inline         [][]Button
	Reply          [][]Button
	RemoveKeyboard bool
}

// SendPhoto sends a photo with caption and inline keyboard.
type SendPhoto struct {
	URL     string
	Caption string
	Inline  [][]Button
}

// SendInvoice sends a Telegram payment invoice.
type SendInvoice struct {
	Title        string
	Description  string
	Payload      string
	TotalKopecks int64
}

// AnswerCallback acknowledges a pressed inline button.
type AnswerCallback struct {
	CallbackID string
	Text       string
}

// AnswerPreCheckout answers Telegram's pre-checkout query.
type AnswerPreCheckout struct {
	QueryID      string
	OK           bool
	ErrorMessage string
}

// NotifyCourier sends the order summary and the customer location to the
// fulfillment facility's courier chat.
type NotifyCourier struct {
	CourierID int64
	Text      string
	Coord     *geo.Coordinate
}

// RecordOrder appends a completed payment to the order log. It carries the
// order reference itself because the session scratch is already cleared by the
// time the effect runs.
type RecordOrder struct {
	PizzeriaID   string
	OrderRef     string
	TotalKopecks int64
}

// ScheduleFollowUp enqueues the delayed post-payment notification. Its
// failure is logged and never fails the payment flow.
type ScheduleFollowUp struct {
	Delay time.Duration
}

func (SendMessage) isEffect()       {}
func (SendPhoto) isEffect()         {}
func (SendInvoice) isEffect()       {}
func (AnswerCallback) isEffect()    {}
func (AnswerPreCheckout) isEffect() {}
func (NotifyCourier) isEffect()     {}
func (RecordOrder) isEffect()       {}
func (ScheduleFollowUp) isEffect()  {}
