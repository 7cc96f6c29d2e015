// Package session manages per-conversation state for the ordering flow.
package session

import (
	"time"

	"github.com/avolkov-go/pizzeria-bot/internal/geo"
)

// State is a named point in the ordering flow.
type State string

const (
	// StateStart is the entry state; an absent stored session is equivalent to it.
	StateStart State = "start"
	// StateBrowsingMenu indicates the catalog menu is displayed.
	StateBrowsingMenu State = "browsing_menu"
	// StateViewingItem indicates a single product card is displayed.
	StateViewingItem State = "viewing_item"
	// StateCartView indicates the cart contents are displayed.
	StateCartView State = "cart_view"
	// StateAwaitingEmail indicates the bot asked for the customer email.
	StateAwaitingEmail State = "awaiting_email"
	// StateAwaitingLocation indicates the bot asked for an address or location share.
	StateAwaitingLocation State = "awaiting_location"
	// StateAwaitingFulfillment indicates pickup/delivery buttons are displayed.
	StateAwaitingFulfillment State = "awaiting_fulfillment"
	// StateAwaitingPayment indicates an invoice flow is in progress.
	StateAwaitingPayment State = "awaiting_payment"
)

// PendingOrder is ephemeral checkout scratch state. The backend's cart stays
// authoritative for items and price; these fields only bridge the gap between
// location confirmation and payment completion.
type PendingOrder struct {
	Email          string          `json:"email,omitempty"`
	CustomerID     string          `json:"customer_id,omitempty"`
	AddressID      string          `json:"address_id,omitempty"`
	CustomerCoord  *geo.Coordinate `json:"customer_coord,omitempty"`
	PizzeriaID     string          `json:"pizzeria_id,omitempty"`
	CourierID      int64           `json:"courier_id,omitempty"`
	DistanceKm     float64         `json:"distance_km,omitempty"`
	InvoiceTotal   int64           `json:"invoice_total,omitempty"` // kopecks
	InvoiceSummary string          `json:"invoice_summary,omitempty"`
	OrderRef       string          `json:"order_ref,omitempty"`
}

// Session captures the conversation state for one chat.
type Session struct {
	ChatID       int64        `json:"chat_id"`
	CurrentState State        `json:"current_state"`
	Order        PendingOrder `json:"order"`
	// LastProductID remembers the product card on display so stray events in
	// the viewing state can re-render it.
	LastProductID string    `json:"last_product_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// New returns a fresh session in the start state.
func New(chatID int64) *Session {
	return &Session{ChatID: chatID, CurrentState: StateStart}
}

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages to observe state transitions.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}

// RecordTransition reports a committed transition to the registered observer.
func RecordTransition(from, to State) {
	transitionRecorder(string(from), string(to))
}
