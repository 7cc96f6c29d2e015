package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	telebot "gopkg.in/telebot.v3"

	"github.com/avolkov-go/pizzeria-bot/internal/jobs"
)

const followUpText = "Приятного аппетита! *место для рекламы*\n\n" +
	"*сообщение что делать если пицца не пришла*"

// Sender is the slice of telebot the follow-up needs.
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// OrderFollowUpHandler sends the delayed post-payment message.
type OrderFollowUpHandler struct {
	sender Sender
	log    *slog.Logger
}

func NewOrderFollowUpHandler(sender Sender, log *slog.Logger) *OrderFollowUpHandler {
	if log == nil {
		log = slog.Default()
	}

	return &OrderFollowUpHandler{sender: sender, log: log}
}

func (h *OrderFollowUpHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.OrderFollowUpPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.log.ErrorContext(ctx, "order follow-up: failed to decode payload",
			slog.Any("task_type", t.Type()), slog.String("error", err.Error()))
		return err
	}

	if _, err := h.sender.Send(&telebot.Chat{ID: payload.ChatID}, followUpText); err != nil {
		h.log.ErrorContext(ctx, "order follow-up: failed to send message",
			slog.Int64("chat_id", payload.ChatID), slog.String("error", err.Error()))
		return err
	}

	h.log.InfoContext(ctx, "sent order follow-up",
		slog.Int64("chat_id", payload.ChatID), slog.String("order_ref", payload.OrderRef))

	return nil
}
