package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/avolkov-go/pizzeria-bot/internal/commerce"
	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/event"
	"github.com/avolkov-go/pizzeria-bot/internal/geo"
	"github.com/avolkov-go/pizzeria-bot/internal/geocoder"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
)

// ack acknowledges the pressed button when the event is a callback, so
// Telegram stops the client-side spinner even on re-render paths.
func ack(ev event.Event) []Effect {
	if press, ok := ev.(event.ButtonPress); ok && press.CallbackID != "" {
		return []Effect{AnswerCallback{CallbackID: press.CallbackID}}
	}

	return nil
}

// enterMenu renders the catalog and drops any in-flight checkout scratch.
func (m *Machine) enterMenu(ctx context.Context, sess *session.Session, ev ...event.Event) ([]Effect, session.State, error) {
	products, err := m.commerce.ListProducts(ctx)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	sess.Order = session.PendingOrder{}
	sess.LastProductID = ""

	inline := make([][]Button, 0, len(products)+1)
	for _, p := range products {
		inline = append(inline, []Button{{
			Text: p.Name,
			Data: encodeCallback(actionProduct, p.ID),
		}})
	}
	inline = append(inline, []Button{{Text: "Корзина", Data: actionCart}})

	var effects []Effect
	if len(ev) > 0 {
		effects = ack(ev[0])
	}
	// Only the location prompt shows a reply keyboard; a restart from there
	// removes it on a separate message since reply_markup cannot carry both
	// a removal and the catalog buttons.
	if sess.CurrentState == session.StateAwaitingLocation {
		effects = append(effects, SendMessage{Text: "Хорошо, начнём сначала.", RemoveKeyboard: true})
	}
	effects = append(effects, SendMessage{
		Text:   "Пожалуйста, выберите товар:",
		Inline: inline,
	})

	return effects, session.StateBrowsingMenu, nil
}

func (m *Machine) handleBrowsingMenu(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	if press, ok := ev.(event.ButtonPress); ok {
		action, arg := decodeCallback(press.Payload)
		switch action {
		case actionProduct:
			return m.showProduct(ctx, sess, arg, ev)
		case actionCart:
			return m.enterCart(ctx, sess, ev)
		}
	}

	// Stray input re-renders the menu.
	return m.enterMenu(ctx, sess, ev)
}

// showProduct renders one product card with its image when the catalog has one.
func (m *Machine) showProduct(ctx context.Context, sess *session.Session, productID string, ev event.Event) ([]Effect, session.State, error) {
	product, err := m.commerce.GetProduct(ctx, productID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	caption := fmt.Sprintf("%s\n\n%s\n\n%s", product.Name, product.Price.Formatted, product.Description)
	inline := [][]Button{
		{{Text: "Добавить в корзину", Data: encodeCallback(actionAddToCart, product.ID)}},
		{{Text: "Назад", Data: actionBack}, {Text: "Корзина", Data: actionCart}},
	}

	effects := ack(ev)
	if product.ImageFileID != "" {
		imageURL, err := m.commerce.GetProductImageURL(ctx, product.ImageFileID)
		if err != nil {
			return nil, sess.CurrentState, err
		}
		effects = append(effects, SendPhoto{URL: imageURL, Caption: caption, Inline: inline})
	} else {
		effects = append(effects, SendMessage{Text: caption, Inline: inline})
	}

	sess.LastProductID = product.ID

	return effects, session.StateViewingItem, nil
}

func (m *Machine) handleViewingItem(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	if press, ok := ev.(event.ButtonPress); ok {
		action, arg := decodeCallback(press.Payload)
		switch action {
		case actionAddToCart:
			if err := m.commerce.AddToCart(ctx, sess.ChatID, arg); err != nil {
				return nil, sess.CurrentState, err
			}
			return []Effect{AnswerCallback{
				CallbackID: press.CallbackID,
				Text:       "Товар добавлен в корзину",
			}}, session.StateViewingItem, nil
		case actionBack:
			return m.enterMenu(ctx, sess, ev)
		case actionCart:
			return m.enterCart(ctx, sess, ev)
		case actionProduct:
			return m.showProduct(ctx, sess, arg, ev)
		}
	}

	if sess.LastProductID == "" {
		return m.enterMenu(ctx, sess, ev)
	}

	return m.showProduct(ctx, sess, sess.LastProductID, ev)
}

// enterCart fetches the cart and renders line items with per-item delete
// buttons; checkout is offered only when the cart is non-empty.
func (m *Machine) enterCart(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	lines, err := m.commerce.GetCart(ctx, sess.ChatID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	effects := ack(ev)

	if len(lines) == 0 {
		effects = append(effects, SendMessage{
			Text:   "Корзина пуста",
			Inline: [][]Button{{{Text: "Меню", Data: actionMenu}}},
		})
		return effects, session.StateCartView, nil
	}

	total, err := m.commerce.GetCartTotal(ctx, sess.ChatID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	var b strings.Builder
	inline := make([][]Button, 0, len(lines)+2)
	for _, line := range lines {
		fmt.Fprintf(&b, "%s\n%s\n%s за шт.\n%d шт. в корзине на сумму %s\n\n",
			line.Name, line.Description, line.UnitPrice.Formatted, line.Quantity, line.LineTotal.Formatted)
		inline = append(inline, []Button{{
			Text: "Убрать из корзины " + line.Name,
			Data: encodeCallback(actionDelete, line.ID),
		}})
	}
	fmt.Fprintf(&b, "Всего: %s", total.Formatted)

	inline = append(inline,
		[]Button{{Text: "Оформить заказ", Data: actionCheckout}},
		[]Button{{Text: "Меню", Data: actionMenu}},
	)

	effects = append(effects, SendMessage{Text: b.String(), Inline: inline})

	return effects, session.StateCartView, nil
}

func (m *Machine) handleCartView(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	if press, ok := ev.(event.ButtonPress); ok {
		action, arg := decodeCallback(press.Payload)
		switch action {
		case actionDelete:
			if err := m.commerce.RemoveFromCart(ctx, sess.ChatID, arg); err != nil {
				return nil, sess.CurrentState, err
			}
			return m.enterCart(ctx, sess, ev)
		case actionCheckout:
			effects := append(ack(ev), SendMessage{Text: "Введите Ваш email:"})
			return effects, session.StateAwaitingEmail, nil
		case actionMenu:
			return m.enterMenu(ctx, sess, ev)
		}
	}

	return m.enterCart(ctx, sess, ev)
}

func (m *Machine) handleAwaitingEmail(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	text, ok := ev.(event.Text)
	if !ok {
		effects := append(ack(ev), SendMessage{Text: "Введите Ваш email:"})
		return effects, session.StateAwaitingEmail, nil
	}

	email := strings.TrimSpace(text.Body)
	if err := m.validate.Var(email, "required,email"); err != nil {
		appErr := apperrors.NewInvalidEmailError(email)
		m.log.Info("rejected customer email",
			slog.Int64("chat_id", sess.ChatID), slog.String("code", appErr.Code))
		return []Effect{SendMessage{Text: appErr.UserMessage}}, session.StateAwaitingEmail, nil
	}

	customerID, err := m.commerce.CreateCustomer(ctx, sess.ChatID, email)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	sess.Order.Email = email
	sess.Order.CustomerID = customerID

	effects := []Effect{SendMessage{
		Text:  "Пришлите, пожалуйста, Ваш адрес текстом или отправьте геолокацию",
		Reply: [][]Button{{{Text: "Отправить геолокацию", RequestLocation: true}}},
	}}

	return effects, session.StateAwaitingLocation, nil
}

func (m *Machine) handleAwaitingLocation(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	var coord geo.Coordinate
	switch e := ev.(type) {
	case event.LocationShared:
		coord = e.Coord
	case event.Text:
		resolved, err := m.geocoder.Resolve(ctx, e.Body)
		if errors.Is(err, geocoder.ErrAddressNotFound) {
			appErr := apperrors.NewUnresolvableAddressError(e.Body)
			m.log.Info("unresolvable customer address",
				slog.Int64("chat_id", sess.ChatID), slog.String("code", appErr.Code))
			return []Effect{SendMessage{Text: appErr.UserMessage}}, session.StateAwaitingLocation, nil
		}
		if err != nil {
			return nil, sess.CurrentState, err
		}
		coord = resolved
	default:
		effects := append(ack(ev), SendMessage{
			Text:  "Пришлите, пожалуйста, Ваш адрес текстом или отправьте геолокацию",
			Reply: [][]Button{{{Text: "Отправить геолокацию", RequestLocation: true}}},
		})
		return effects, session.StateAwaitingLocation, nil
	}

	addressID, err := m.commerce.SaveCustomerAddress(ctx, sess.ChatID, coord)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	pizzerias, err := m.commerce.ListPizzerias(ctx)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	places := make([]geo.Place, len(pizzerias))
	for i, p := range pizzerias {
		places[i] = p.Place()
	}

	nearest, err := geo.Locate(coord, places, m.thresholds)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	var courierID int64
	for _, p := range pizzerias {
		if p.ID == nearest.Place.ID {
			courierID = p.CourierID
			break
		}
	}

	sess.Order.AddressID = addressID
	sess.Order.CustomerCoord = &coord
	sess.Order.PizzeriaID = nearest.Place.ID
	sess.Order.CourierID = courierID
	sess.Order.DistanceKm = nearest.DistanceKm

	// The removal rides on its own message: reply_markup cannot carry both
	// a keyboard removal and the inline fulfillment buttons.
	effects := []Effect{
		SendMessage{Text: "Адрес принят.", RemoveKeyboard: true},
		SendMessage{
			Text:   m.bandText(nearest.Band, nearest.DistanceKm, nearest.Place.Address),
			Inline: fulfillmentButtons(nearest.Band),
		},
	}

	return effects, session.StateAwaitingFulfillment, nil
}

// bandText is the delivery offer worded per distance band.
func (m *Machine) bandText(band geo.Band, distanceKm float64, address string) string {
	switch band {
	case geo.BandNear:
		return fmt.Sprintf(
			"Может, заберёте пиццу из нашей пиццерии неподалёку? Она всего в %.1f км от Вас! Вот её адрес: %s.\n\nА можем и бесплатно доставить, нам не сложно",
			distanceKm, address)
	case geo.BandStandard:
		return fmt.Sprintf(
			"Похоже, придётся ехать к Вам на самокате. Доставка будет стоить %s. Доставляем или самовывоз?",
			formatKopecks(m.courierFee))
	default:
		return fmt.Sprintf(
			"Простите, но так далеко мы пиццу не доставим. Ближайшая пиццерия аж в %.1f км от Вас! Зато Вы можете забрать заказ сами, вот её адрес: %s",
			distanceKm, address)
	}
}

// fulfillmentButtons omits delivery beyond the service radius; pickup stays
// available at every distance.
func fulfillmentButtons(band geo.Band) [][]Button {
	row := []Button{{Text: "Самовывоз", Data: actionPickup}}
	if band != geo.BandTooFar {
		row = append(row, Button{Text: "Доставка", Data: actionDelivery})
	}

	return [][]Button{row}
}

func (m *Machine) handleAwaitingFulfillment(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	band := m.thresholds.Classify(sess.Order.DistanceKm)

	if press, ok := ev.(event.ButtonPress); ok {
		action, _ := decodeCallback(press.Payload)
		switch action {
		case actionPickup:
			pizzeria, err := m.commerce.GetPizzeria(ctx, sess.Order.PizzeriaID)
			if err != nil {
				return nil, sess.CurrentState, err
			}
			effects := append(ack(ev), SendMessage{
				Text: fmt.Sprintf("Вы выбрали самовывоз. Ждём Вас по адресу: %s", pizzeria.Address),
			})
			sess.Order = session.PendingOrder{}
			return effects, session.StateStart, nil
		case actionDelivery:
			if band == geo.BandTooFar {
				break
			}
			effects := append(ack(ev), SendMessage{
				Text:   "Заказ почти готов! Осталось оплатить.",
				Inline: [][]Button{{{Text: "Оплатить", Data: actionPay}}},
			})
			return effects, session.StateAwaitingPayment, nil
		}
	}

	return m.rerenderFulfillment(ctx, sess, band, ev)
}

func (m *Machine) rerenderFulfillment(ctx context.Context, sess *session.Session, band geo.Band, ev event.Event) ([]Effect, session.State, error) {
	pizzeria, err := m.commerce.GetPizzeria(ctx, sess.Order.PizzeriaID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	effects := append(ack(ev), SendMessage{
		Text:   m.bandText(band, sess.Order.DistanceKm, pizzeria.Address),
		Inline: fulfillmentButtons(band),
	})

	return effects, session.StateAwaitingFulfillment, nil
}

func (m *Machine) handleAwaitingPayment(ctx context.Context, sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	press, ok := ev.(event.ButtonPress)
	if !ok {
		return m.rerenderPayment(sess, ev)
	}

	if action, _ := decodeCallback(press.Payload); action != actionPay {
		return m.rerenderPayment(sess, ev)
	}

	lines, err := m.commerce.GetCart(ctx, sess.ChatID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	total, err := m.commerce.GetCartTotal(ctx, sess.ChatID)
	if err != nil {
		return nil, sess.CurrentState, err
	}

	invoiceTotal := total.Kopecks
	if m.thresholds.Classify(sess.Order.DistanceKm) == geo.BandStandard {
		invoiceTotal += m.courierFee
	}

	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%s × %d\n", line.Name, line.Quantity)
	}
	summary := strings.TrimSuffix(b.String(), "\n")

	orderRef, err := m.commerce.IssueInvoice(ctx, sess.ChatID, commerce.Amount{Kopecks: invoiceTotal})
	if err != nil {
		return nil, sess.CurrentState, err
	}

	if err := m.commerce.ClearCart(ctx, sess.ChatID); err != nil {
		return nil, sess.CurrentState, err
	}

	sess.Order.InvoiceTotal = invoiceTotal
	sess.Order.InvoiceSummary = summary
	sess.Order.OrderRef = orderRef

	effects := append(ack(ev),
		SendInvoice{
			Title:        "Заказ пиццы",
			Description:  summary,
			Payload:      orderRef,
			TotalKopecks: invoiceTotal,
		},
		NotifyCourier{
			CourierID: sess.Order.CourierID,
			Text:      fmt.Sprintf("Новый заказ на %s:\n%s", formatKopecks(invoiceTotal), summary),
			Coord:     sess.Order.CustomerCoord,
		},
		ScheduleFollowUp{Delay: m.followUpDelay},
	)

	return effects, session.StateAwaitingPayment, nil
}

func (m *Machine) rerenderPayment(sess *session.Session, ev event.Event) ([]Effect, session.State, error) {
	effects := append(ack(ev), SendMessage{
		Text:   "Заказ почти готов! Осталось оплатить.",
		Inline: [][]Button{{{Text: "Оплатить", Data: actionPay}}},
	})

	return effects, session.StateAwaitingPayment, nil
}

func (m *Machine) handlePaymentCompleted(sess *session.Session, e event.PaymentCompleted) ([]Effect, session.State, error) {
	effects := []Effect{
		SendMessage{Text: "Спасибо за заказ! Приятного аппетита!"},
		RecordOrder{
			PizzeriaID:   sess.Order.PizzeriaID,
			OrderRef:     sess.Order.OrderRef,
			TotalKopecks: e.TotalKopecks,
		},
	}

	sess.Order = session.PendingOrder{}
	sess.LastProductID = ""

	return effects, session.StateStart, nil
}

// formatKopecks renders a kopeck amount in rubles the way receipts do.
func formatKopecks(kopecks int64) string {
	if kopecks%100 == 0 {
		return fmt.Sprintf("%d руб.", kopecks/100)
	}

	return fmt.Sprintf("%d.%02d руб.", kopecks/100, kopecks%100)
}
