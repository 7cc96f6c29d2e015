package bot

import (
	"context"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/avolkov-go/pizzeria-bot/internal/flow"
	"github.com/avolkov-go/pizzeria-bot/internal/jobs"
	"github.com/avolkov-go/pizzeria-bot/internal/repository"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

// Dispatcher executes the ordered effects a state handler produced against
// the Telegram API and the supporting services.
type Dispatcher struct {
	bot    *telebot.Bot
	cfg    config.BotConfig
	delay  time.Duration
	orders repository.OrderLog
	jobs   jobs.Manager
	log    *slog.Logger
}

// NewDispatcher builds a Dispatcher over the live telebot instance.
func NewDispatcher(bot *telebot.Bot, cfg config.BotConfig, followUpDelay time.Duration, orders repository.OrderLog, jobsManager jobs.Manager, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		bot:    bot,
		cfg:    cfg,
		delay:  followUpDelay,
		orders: orders,
		jobs:   jobsManager,
		log:    log,
	}
}

// Dispatch runs the effects in order. The first messaging failure aborts the
// sequence so the caller skips the session write and the event can be retried.
// Order-log appends and follow-up scheduling are fire-and-forget: their
// failure is logged but never fails a payment that already went through.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, effects []flow.Effect) error {
	to := &telebot.Chat{ID: sess.ChatID}

	for _, effect := range effects {
		switch e := effect.(type) {
		case flow.SendMessage:
			if _, err := d.bot.Send(to, e.Text, sendOptions(markupFor(e.Inline, e.Reply, e.RemoveKeyboard))...); err != nil {
				return err
			}
		case flow.SendPhoto:
			photo := &telebot.Photo{File: telebot.FromURL(e.URL), Caption: e.Caption}
			if _, err := d.bot.Send(to, photo, sendOptions(markupFor(e.Inline, nil, false))...); err != nil {
				return err
			}
		case flow.SendInvoice:
			invoice := telebot.Invoice{
				Title:       e.Title,
				Description: e.Description,
				Payload:     e.Payload,
				Currency:    d.cfg.Currency,
				Token:       d.cfg.ProviderToken,
				Prices: []telebot.Price{
					{Label: "Заказ", Amount: int(e.TotalKopecks)},
				},
			}
			if _, err := d.bot.Send(to, &invoice); err != nil {
				return err
			}
		case flow.AnswerCallback:
			resp := &telebot.CallbackResponse{Text: e.Text}
			if err := d.bot.Respond(&telebot.Callback{ID: e.CallbackID}, resp); err != nil {
				return err
			}
		case flow.AnswerPreCheckout:
			query := &telebot.PreCheckoutQuery{ID: e.QueryID}
			var err error
			if e.OK {
				err = d.bot.Accept(query)
			} else {
				err = d.bot.Accept(query, e.ErrorMessage)
			}
			if err != nil {
				return err
			}
		case flow.NotifyCourier:
			courier := &telebot.Chat{ID: e.CourierID}
			if _, err := d.bot.Send(courier, e.Text); err != nil {
				return err
			}
			if e.Coord != nil {
				location := &telebot.Location{Lat: float32(e.Coord.Lat), Lng: float32(e.Coord.Lon)}
				if _, err := d.bot.Send(courier, location); err != nil {
					return err
				}
			}
		case flow.RecordOrder:
			d.recordOrder(ctx, sess, e)
		case flow.ScheduleFollowUp:
			d.scheduleFollowUp(ctx, sess, e)
		default:
			d.log.Warn("unknown effect skipped", slog.Int64("chat_id", sess.ChatID))
		}
	}

	return nil
}

func (d *Dispatcher) recordOrder(ctx context.Context, sess *session.Session, e flow.RecordOrder) {
	if d.orders == nil {
		return
	}

	rec := repository.OrderRecord{
		ChatID:       sess.ChatID,
		PizzeriaID:   e.PizzeriaID,
		OrderRef:     e.OrderRef,
		TotalKopecks: e.TotalKopecks,
		Currency:     d.cfg.Currency,
		PaidAt:       time.Now().UTC(),
	}

	if err := d.orders.Record(ctx, rec); err != nil {
		d.log.Error("failed to append order log",
			slog.Int64("chat_id", sess.ChatID), slog.Any("error", err))
	}
}

func (d *Dispatcher) scheduleFollowUp(ctx context.Context, sess *session.Session, e flow.ScheduleFollowUp) {
	if d.jobs == nil {
		return
	}

	delay := e.Delay
	if delay <= 0 {
		delay = d.delay
	}

	if err := d.jobs.ScheduleFollowUp(ctx, sess.ChatID, sess.Order.OrderRef, delay); err != nil {
		d.log.Error("failed to schedule order follow-up",
			slog.Int64("chat_id", sess.ChatID), slog.Any("error", err))
	}
}

func sendOptions(markup *telebot.ReplyMarkup) []interface{} {
	if markup == nil {
		return nil
	}

	return []interface{}{markup}
}

// markupFor renders the effect-level keyboard model into telebot markup.
// A nil result keeps the previous keyboard untouched.
func markupFor(inline, reply [][]flow.Button, removeKeyboard bool) *telebot.ReplyMarkup {
	if len(inline) == 0 && len(reply) == 0 && !removeKeyboard {
		return nil
	}

	markup := &telebot.ReplyMarkup{ResizeKeyboard: true}

	for _, row := range inline {
		var buttons []telebot.InlineButton
		for _, b := range row {
			buttons = append(buttons, telebot.InlineButton{Text: b.Text, Data: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}

	for _, row := range reply {
		var buttons []telebot.ReplyButton
		for _, b := range row {
			buttons = append(buttons, telebot.ReplyButton{Text: b.Text, Location: b.RequestLocation})
		}
		markup.ReplyKeyboard = append(markup.ReplyKeyboard, buttons)
	}

	// reply_markup is a oneOf in the Bot API: a removal cannot ride along
	// with another keyboard in the same message.
	if removeKeyboard && len(markup.ReplyKeyboard) == 0 && len(markup.InlineKeyboard) == 0 {
		markup.RemoveKeyboard = true
	}

	return markup
}
