package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/avolkov-go/pizzeria-bot/internal/commerce"
	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/event"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
	"github.com/avolkov-go/pizzeria-bot/internal/geocoder"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

type mockCommerce struct {
	mock.Mock
}

func (m *mockCommerce) ListProducts(ctx context.Context) ([]commerce.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]commerce.Product), args.Error(1)
}

func (m *mockCommerce) GetProduct(ctx context.Context, productID string) (commerce.Product, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(commerce.Product), args.Error(1)
}

func (m *mockCommerce) GetProductImageURL(ctx context.Context, fileID string) (string, error) {
	args := m.Called(ctx, fileID)
	return args.String(0), args.Error(1)
}

func (m *mockCommerce) AddToCart(ctx context.Context, chatID int64, productID string) error {
	return m.Called(ctx, chatID, productID).Error(0)
}

func (m *mockCommerce) RemoveFromCart(ctx context.Context, chatID int64, itemID string) error {
	return m.Called(ctx, chatID, itemID).Error(0)
}

func (m *mockCommerce) GetCart(ctx context.Context, chatID int64) ([]commerce.CartLine, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).([]commerce.CartLine), args.Error(1)
}

func (m *mockCommerce) GetCartTotal(ctx context.Context, chatID int64) (commerce.Amount, error) {
	args := m.Called(ctx, chatID)
	return args.Get(0).(commerce.Amount), args.Error(1)
}

func (m *mockCommerce) ClearCart(ctx context.Context, chatID int64) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *mockCommerce) CreateCustomer(ctx context.Context, chatID int64, email string) (string, error) {
	args := m.Called(ctx, chatID, email)
	return args.String(0), args.Error(1)
}

func (m *mockCommerce) SaveCustomerAddress(ctx context.Context, chatID int64, coord geo.Coordinate) (string, error) {
	args := m.Called(ctx, chatID, coord)
	return args.String(0), args.Error(1)
}

func (m *mockCommerce) ListPizzerias(ctx context.Context) ([]commerce.Pizzeria, error) {
	args := m.Called(ctx)
	return args.Get(0).([]commerce.Pizzeria), args.Error(1)
}

func (m *mockCommerce) GetPizzeria(ctx context.Context, pizzeriaID string) (commerce.Pizzeria, error) {
	args := m.Called(ctx, pizzeriaID)
	return args.Get(0).(commerce.Pizzeria), args.Error(1)
}

func (m *mockCommerce) IssueInvoice(ctx context.Context, chatID int64, amount commerce.Amount) (string, error) {
	args := m.Called(ctx, chatID, amount)
	return args.String(0), args.Error(1)
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Resolve(ctx context.Context, address string) (geo.Coordinate, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(geo.Coordinate), args.Error(1)
}

func newTestMachine(cm Commerce, gc Geocoder) *Machine {
	return NewMachine(cm, gc, config.DeliveryConfig{
		NearRadiusKm:  5,
		MaxRadiusKm:   20,
		CourierFee:    30000,
		FollowUpDelay: time.Hour,
	}, nil)
}

func messagesOf(effects []Effect) []SendMessage {
	var msgs []SendMessage
	for _, e := range effects {
		if msg, ok := e.(SendMessage); ok {
			msgs = append(msgs, msg)
		}
	}

	return msgs
}

func buttonData(rows [][]Button) []string {
	var data []string
	for _, row := range rows {
		for _, b := range row {
			data = append(data, b.Data)
		}
	}

	return data
}

const kmPerLatDegree = 111.19492664 // 6371 km * pi / 180

// coordAtKm moves due north from base by the given distance.
func coordAtKm(base geo.Coordinate, km float64) geo.Coordinate {
	return geo.Coordinate{Lat: base.Lat + km/kmPerLatDegree, Lon: base.Lon}
}

func TestStep_StartRendersCatalogOnce(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("ListProducts", mock.Anything).Return([]commerce.Product{
		{ID: "p1", Name: "Маргарита"},
		{ID: "p2", Name: "Пепперони"},
	}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)

	effects, next, err := m.Step(context.Background(), sess, event.Command{Name: "/start"})
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Пожалуйста, выберите товар:", msgs[0].Text)
	assert.Contains(t, buttonData(msgs[0].Inline), "product:p1")
	assert.Contains(t, buttonData(msgs[0].Inline), actionCart)

	cm.AssertExpectations(t)
}

func TestStep_StartResetsCheckoutScratch(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("ListProducts", mock.Anything).Return([]commerce.Product{}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingFulfillment
	sess.Order = session.PendingOrder{Email: "a@b.ru", PizzeriaID: "pz1", DistanceKm: 3.2}

	_, next, err := m.Step(context.Background(), sess, event.Command{Name: "/start"})
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, next)
	assert.Equal(t, session.PendingOrder{}, sess.Order)
}

func TestStep_StartFromLocationPromptRemovesReplyKeyboard(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("ListProducts", mock.Anything).Return([]commerce.Product{{ID: "p1", Name: "Маргарита"}}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingLocation

	effects, next, err := m.Step(context.Background(), sess, event.Command{Name: "/start"})
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].RemoveKeyboard)
	assert.Empty(t, msgs[0].Inline)
	assert.Equal(t, "Пожалуйста, выберите товар:", msgs[1].Text)
}

func TestStep_ProductSelectionRendersCard(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("GetProduct", mock.Anything, "p1").Return(commerce.Product{
		ID:          "p1",
		Name:        "Маргарита",
		Description: "Томаты и моцарелла",
		Price:       commerce.Amount{Kopecks: 52900, Formatted: "529 руб."},
		ImageFileID: "img-1",
	}, nil)
	cm.On("GetProductImageURL", mock.Anything, "img-1").Return("https://cdn/img-1.png", nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateBrowsingMenu

	effects, next, err := m.Step(context.Background(), sess,
		event.ButtonPress{Payload: "product:p1", CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateViewingItem, next)
	assert.Equal(t, "p1", sess.LastProductID)

	var photo SendPhoto
	found := false
	for _, e := range effects {
		if p, ok := e.(SendPhoto); ok {
			photo = p
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, "https://cdn/img-1.png", photo.URL)
	assert.Contains(t, photo.Caption, "Маргарита")
	assert.Contains(t, buttonData(photo.Inline), "add_to_cart:p1")
}

func TestStep_AddToCartTwiceStaysInViewingItem(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("AddToCart", mock.Anything, int64(42), "p1").Return(nil).Twice()

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateViewingItem
	sess.LastProductID = "p1"

	press := event.ButtonPress{Payload: "add_to_cart:p1", CallbackID: "cb-1"}

	for i := 0; i < 2; i++ {
		effects, next, err := m.Step(context.Background(), sess, press)
		require.NoError(t, err)
		assert.Equal(t, session.StateViewingItem, next)

		require.Len(t, effects, 1)
		answer, ok := effects[0].(AnswerCallback)
		require.True(t, ok)
		assert.Equal(t, "Товар добавлен в корзину", answer.Text)
	}

	cm.AssertExpectations(t)
}

func TestStep_CartEntryFailureDoesNotAdvanceState(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("GetCart", mock.Anything, int64(42)).
		Return([]commerce.CartLine(nil), apperrors.NewBackendUnavailableError("commerce API", nil))

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateViewingItem

	_, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionCart, CallbackID: "cb-1"})
	require.Error(t, err)
	assert.Equal(t, session.StateViewingItem, next)
}

func TestStep_CartViewRendersLinesAndCheckout(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("GetCart", mock.Anything, int64(42)).Return([]commerce.CartLine{
		{
			ID:        "item-1",
			Name:      "Маргарита",
			Quantity:  2,
			UnitPrice: commerce.Amount{Formatted: "529 руб."},
			LineTotal: commerce.Amount{Formatted: "1058 руб."},
		},
	}, nil)
	cm.On("GetCartTotal", mock.Anything, int64(42)).
		Return(commerce.Amount{Kopecks: 105800, Formatted: "1058 руб."}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateBrowsingMenu

	effects, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionCart, CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCartView, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Маргарита")
	assert.Contains(t, msgs[0].Text, "Всего: 1058 руб.")

	data := buttonData(msgs[0].Inline)
	assert.Contains(t, data, "delete:item-1")
	assert.Contains(t, data, actionCheckout)
	assert.Contains(t, data, actionMenu)
}

func TestStep_EmptyCartOffersNoCheckout(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("GetCart", mock.Anything, int64(42)).Return([]commerce.CartLine{}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateBrowsingMenu

	effects, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionCart, CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCartView, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Корзина пуста", msgs[0].Text)
	assert.NotContains(t, buttonData(msgs[0].Inline), actionCheckout)
}

func TestStep_InvalidEmailRepromptsWithoutFacadeCall(t *testing.T) {
	cm := new(mockCommerce)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingEmail

	effects, next, err := m.Step(context.Background(), sess, event.Text{Body: "not-an-email"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingEmail, next)

	require.Len(t, effects, 1)
	msg, ok := effects[0].(SendMessage)
	require.True(t, ok)
	assert.Equal(t, "Введите корректный email", msg.Text)

	cm.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
}

func TestStep_ValidEmailCreatesCustomerAndAsksForLocation(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("CreateCustomer", mock.Anything, int64(42), "customer@example.com").
		Return("cust-1", nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingEmail

	effects, next, err := m.Step(context.Background(), sess, event.Text{Body: "customer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingLocation, next)
	assert.Equal(t, "customer@example.com", sess.Order.Email)
	assert.Equal(t, "cust-1", sess.Order.CustomerID)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	require.NotEmpty(t, msgs[0].Reply)
	assert.True(t, msgs[0].Reply[0][0].RequestLocation)

	cm.AssertExpectations(t)
}

func TestStep_LocationSelectsNearestAndOffersBothOptions(t *testing.T) {
	customer := geo.Coordinate{Lat: 55.75, Lon: 37.61}
	cm := new(mockCommerce)
	cm.On("SaveCustomerAddress", mock.Anything, int64(42), customer).Return("addr-1", nil)
	cm.On("ListPizzerias", mock.Anything).Return([]commerce.Pizzeria{
		{ID: "far", Address: "ул. Дальняя, 1", Coord: coordAtKm(customer, 18.0), CourierID: 100},
		{ID: "close", Address: "ул. Ближняя, 2", Coord: coordAtKm(customer, 3.2), CourierID: 200},
	}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingLocation

	effects, next, err := m.Step(context.Background(), sess, event.LocationShared{Coord: customer})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingFulfillment, next)

	assert.Equal(t, "close", sess.Order.PizzeriaID)
	assert.Equal(t, int64(200), sess.Order.CourierID)
	assert.InDelta(t, 3.2, sess.Order.DistanceKm, 1e-9)
	require.NotNil(t, sess.Order.CustomerCoord)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].RemoveKeyboard)
	assert.Empty(t, msgs[0].Inline)
	data := buttonData(msgs[1].Inline)
	assert.Contains(t, data, actionPickup)
	assert.Contains(t, data, actionDelivery)
}

func TestStep_LocationTooFarOmitsDelivery(t *testing.T) {
	customer := geo.Coordinate{Lat: 55.75, Lon: 37.61}
	cm := new(mockCommerce)
	cm.On("SaveCustomerAddress", mock.Anything, int64(42), customer).Return("addr-1", nil)
	cm.On("ListPizzerias", mock.Anything).Return([]commerce.Pizzeria{
		{ID: "remote", Address: "ул. Дальняя, 1", Coord: coordAtKm(customer, 25.0), CourierID: 100},
	}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingLocation

	effects, next, err := m.Step(context.Background(), sess, event.LocationShared{Coord: customer})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingFulfillment, next)
	assert.InDelta(t, 25.0, sess.Order.DistanceKm, 1e-9)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].RemoveKeyboard)
	data := buttonData(msgs[1].Inline)
	assert.Contains(t, data, actionPickup)
	assert.NotContains(t, data, actionDelivery)
}

func TestStep_UnresolvableAddressReprompts(t *testing.T) {
	gc := new(mockGeocoder)
	gc.On("Resolve", mock.Anything, "где-то там").
		Return(geo.Coordinate{}, geocoder.ErrAddressNotFound)

	m := newTestMachine(new(mockCommerce), gc)
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingLocation

	effects, next, err := m.Step(context.Background(), sess, event.Text{Body: "где-то там"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingLocation, next)

	require.Len(t, effects, 1)
	msg, ok := effects[0].(SendMessage)
	require.True(t, ok)
	assert.Contains(t, msg.Text, "Не удалось распознать адрес")
}

func TestStep_GeocoderOutageSurfacesAsHandlerFailure(t *testing.T) {
	gc := new(mockGeocoder)
	gc.On("Resolve", mock.Anything, "ул. Тверская, 1").
		Return(geo.Coordinate{}, apperrors.NewBackendUnavailableError("geocoder API", nil))

	m := newTestMachine(new(mockCommerce), gc)
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingLocation

	_, next, err := m.Step(context.Background(), sess, event.Text{Body: "ул. Тверская, 1"})
	require.Error(t, err)
	assert.Equal(t, session.StateAwaitingLocation, next)
}

func TestStep_PickupEndsFlow(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("GetPizzeria", mock.Anything, "pz1").
		Return(commerce.Pizzeria{ID: "pz1", Address: "ул. Тверская, 1"}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingFulfillment
	sess.Order = session.PendingOrder{PizzeriaID: "pz1", DistanceKm: 3.2}

	effects, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionPickup, CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateStart, next)
	assert.Equal(t, session.PendingOrder{}, sess.Order)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "ул. Тверская, 1")
}

func TestStep_DeliveryLeadsToPayment(t *testing.T) {
	m := newTestMachine(new(mockCommerce), new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingFulfillment
	sess.Order = session.PendingOrder{PizzeriaID: "pz1", DistanceKm: 3.2}

	effects, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionDelivery, CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingPayment, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Contains(t, buttonData(msgs[0].Inline), actionPay)
}

func TestStep_PayIssuesInvoiceAndNotifiesCourier(t *testing.T) {
	customer := geo.Coordinate{Lat: 55.75, Lon: 37.61}
	cm := new(mockCommerce)
	cm.On("GetCart", mock.Anything, int64(42)).Return([]commerce.CartLine{
		{ID: "item-1", Name: "Маргарита", Quantity: 2},
	}, nil)
	cm.On("GetCartTotal", mock.Anything, int64(42)).
		Return(commerce.Amount{Kopecks: 105800}, nil)
	cm.On("IssueInvoice", mock.Anything, int64(42), commerce.Amount{Kopecks: 135800}).
		Return("order-1", nil)
	cm.On("ClearCart", mock.Anything, int64(42)).Return(nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingPayment
	// 12 km is the paid-courier band, so the fee lands on the invoice.
	sess.Order = session.PendingOrder{
		PizzeriaID:    "pz1",
		CourierID:     777,
		DistanceKm:    12.0,
		CustomerCoord: &customer,
	}

	effects, next, err := m.Step(context.Background(), sess, event.ButtonPress{Payload: actionPay, CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingPayment, next)
	assert.Equal(t, int64(135800), sess.Order.InvoiceTotal)
	assert.Equal(t, "order-1", sess.Order.OrderRef)

	var invoice SendInvoice
	var courier NotifyCourier
	var followUp *ScheduleFollowUp
	for _, e := range effects {
		switch v := e.(type) {
		case SendInvoice:
			invoice = v
		case NotifyCourier:
			courier = v
		case ScheduleFollowUp:
			followUp = &v
		}
	}

	assert.Equal(t, int64(135800), invoice.TotalKopecks)
	assert.Equal(t, "order-1", invoice.Payload)
	assert.Equal(t, int64(777), courier.CourierID)
	require.NotNil(t, courier.Coord)
	assert.InDelta(t, customer.Lat, courier.Coord.Lat, 1e-9)
	require.NotNil(t, followUp)
	assert.Equal(t, time.Hour, followUp.Delay)

	cm.AssertExpectations(t)
}

func TestStep_PreCheckoutAcknowledgedFromAnyState(t *testing.T) {
	m := newTestMachine(new(mockCommerce), new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingPayment

	effects, next, err := m.Step(context.Background(), sess, event.PreCheckout{ID: "q-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingPayment, next)

	require.Len(t, effects, 1)
	answer, ok := effects[0].(AnswerPreCheckout)
	require.True(t, ok)
	assert.True(t, answer.OK)
	assert.Equal(t, "q-1", answer.QueryID)
}

func TestStep_PaymentCompletedRecordsOrderAndResets(t *testing.T) {
	m := newTestMachine(new(mockCommerce), new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateAwaitingPayment
	sess.Order = session.PendingOrder{PizzeriaID: "pz1", OrderRef: "order-1", InvoiceTotal: 135800}

	effects, next, err := m.Step(context.Background(), sess,
		event.PaymentCompleted{TotalKopecks: 135800, Currency: "RUB"})
	require.NoError(t, err)
	assert.Equal(t, session.StateStart, next)
	assert.Equal(t, session.PendingOrder{}, sess.Order)

	var record *RecordOrder
	for _, e := range effects {
		if r, ok := e.(RecordOrder); ok {
			record = &r
		}
	}
	require.NotNil(t, record)
	assert.Equal(t, "pz1", record.PizzeriaID)
	assert.Equal(t, "order-1", record.OrderRef)
	assert.Equal(t, int64(135800), record.TotalKopecks)
}

func TestStep_StrayPayloadRerendersMenu(t *testing.T) {
	cm := new(mockCommerce)
	cm.On("ListProducts", mock.Anything).Return([]commerce.Product{{ID: "p1", Name: "Маргарита"}}, nil)

	m := newTestMachine(cm, new(mockGeocoder))
	sess := session.New(42)
	sess.CurrentState = session.StateBrowsingMenu

	effects, next, err := m.Step(context.Background(), sess,
		event.ButtonPress{Payload: "bogus:xyz", CallbackID: "cb-1"})
	require.NoError(t, err)
	assert.Equal(t, session.StateBrowsingMenu, next)

	msgs := messagesOf(effects)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Пожалуйста, выберите товар:", msgs[0].Text)
}
