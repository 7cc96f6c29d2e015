package flow

import (
	"context"
	"log/slog"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/avolkov-go/pizzeria-bot/internal/commerce"
	"github.com/avolkov-go/pizzeria-bot/internal/event"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

// Commerce is the narrow contract to the catalog/cart/customer backend.
type Commerce interface {
	ListProducts(ctx context.Context) ([]commerce.Product, error)
	GetProduct(ctx context.Context, productID string) (commerce.Product, error)
	GetProductImageURL(ctx context.Context, fileID string) (string, error)
	AddToCart(ctx context.Context, chatID int64, productID string) error
	RemoveFromCart(ctx context.Context, chatID int64, itemID string) error
	GetCart(ctx context.Context, chatID int64) ([]commerce.CartLine, error)
	GetCartTotal(ctx context.Context, chatID int64) (commerce.Amount, error)
	ClearCart(ctx context.Context, chatID int64) error
	CreateCustomer(ctx context.Context, chatID int64, email string) (string, error)
	SaveCustomerAddress(ctx context.Context, chatID int64, coord geo.Coordinate) (string, error)
	ListPizzerias(ctx context.Context) ([]commerce.Pizzeria, error)
	GetPizzeria(ctx context.Context, pizzeriaID string) (commerce.Pizzeria, error)
	IssueInvoice(ctx context.Context, chatID int64, amount commerce.Amount) (string, error)
}

// Geocoder resolves free-text addresses to coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (geo.Coordinate, error)
}

// Machine is the deterministic conversation state machine: for every
// (state, event shape) pair exactly one handler applies.
type Machine struct {
	commerce      Commerce
	geocoder      Geocoder
	thresholds    geo.Thresholds
	courierFee    int64
	followUpDelay time.Duration
	validate      *validator.Validate
	log           *slog.Logger
}

// NewMachine builds a state machine over the given collaborators.
func NewMachine(cm Commerce, gc Geocoder, delivery config.DeliveryConfig, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}

	thresholds := geo.Thresholds{
		NearRadiusKm: delivery.NearRadiusKm,
		MaxRadiusKm:  delivery.MaxRadiusKm,
	}
	if thresholds.NearRadiusKm <= 0 || thresholds.MaxRadiusKm <= thresholds.NearRadiusKm {
		thresholds = geo.DefaultThresholds
	}

	followUp := delivery.FollowUpDelay
	if followUp <= 0 {
		followUp = time.Hour
	}

	return &Machine{
		commerce:      cm,
		geocoder:      gc,
		thresholds:    thresholds,
		courierFee:    delivery.CourierFee,
		followUpDelay: followUp,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           log,
	}
}

// Step processes one event against the session and returns the ordered
// outbound effects plus the next state. A non-nil error means the event
// failed mid-handler: the caller sends the generic apology and must not
// persist the state, so the next event re-enters the same state.
func (m *Machine) Step(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	// Payment plumbing is global: these events are valid in any state.
	switch e := ev.(type) {
	case event.PreCheckout:
		return []Effect{AnswerPreCheckout{QueryID: e.ID, OK: true}}, sess.CurrentState, nil
	case event.PaymentCompleted:
		return m.handlePaymentCompleted(sess, e)
	}

	if event.IsReset(ev) {
		return m.enterMenu(ctx, sess)
	}

	switch sess.CurrentState {
	case session.StateStart:
		return m.enterMenu(ctx, sess)
	case session.StateBrowsingMenu:
		return m.handleBrowsingMenu(ctx, sess, ev)
	case session.StateViewingItem:
		return m.handleViewingItem(ctx, sess, ev)
	case session.StateCartView:
		return m.handleCartView(ctx, sess, ev)
	case session.StateAwaitingEmail:
		return m.handleAwaitingEmail(ctx, sess, ev)
	case session.StateAwaitingLocation:
		return m.handleAwaitingLocation(ctx, sess, ev)
	case session.StateAwaitingFulfillment:
		return m.handleAwaitingFulfillment(ctx, sess, ev)
	case session.StateAwaitingPayment:
		return m.handleAwaitingPayment(ctx, sess, ev)
	default:
		m.log.Warn("unknown conversation state, resetting to menu",
			slog.Int64("chat_id", sess.ChatID), slog.String("state", string(sess.CurrentState)))
		return m.enterMenu(ctx, sess)
	}
}
