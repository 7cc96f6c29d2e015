// Package bot wires the Telegram transport to the conversation state machine.
package bot

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
	"github.com/avolkov-go/pizzeria-bot/internal/event"
	"github.com/avolkov-go/pizzeria-bot/internal/flow"
	"github.com/avolkov-go/pizzeria-bot/internal/idempotency"
	"github.com/avolkov-go/pizzeria-bot/internal/jobs"
	"github.com/avolkov-go/pizzeria-bot/internal/ratelimit"
	"github.com/avolkov-go/pizzeria-bot/internal/repository"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
	"github.com/avolkov-go/pizzeria-bot/pkg/logger"
	"github.com/avolkov-go/pizzeria-bot/pkg/metrics"
)

const (
	// updateTimeout bounds one unit of work including every external call.
	updateTimeout = 30 * time.Second
	// updateDedupeTTL covers Telegram's delivery retry horizon.
	updateDedupeTTL = 10 * time.Minute
)

// Bot drives the update loop: every inbound update passes through one
// entrypoint that normalizes it, loads the session, steps the state machine,
// dispatches the effects, and persists the resulting state.
type Bot struct {
	telebot    *telebot.Bot
	cfg        *config.Config
	log        *slog.Logger
	machine    *flow.Machine
	storage    session.Storage
	locker     *session.Locker
	guard      idempotency.Guard
	limiter    ratelimit.Limiter
	dispatcher *Dispatcher
	errHandler *apperrors.Handler
}

// New builds a telegram bot instance configured according to the application settings.
func New(
	cfg *config.Config,
	log *slog.Logger,
	machine *flow.Machine,
	storage session.Storage,
	locker *session.Locker,
	guard idempotency.Guard,
	limiter ratelimit.Limiter,
	orders repository.OrderLog,
	jobsManager jobs.Manager,
) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token:  cfg.Bot.Token,
		Poller: &telebot.LongPoller{Timeout: cfg.Bot.PollTimeout},
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot:    tb,
		cfg:        cfg,
		log:        log,
		machine:    machine,
		storage:    storage,
		locker:     locker,
		guard:      guard,
		limiter:    limiter,
		dispatcher: NewDispatcher(tb, cfg.Bot, cfg.Delivery.FollowUpDelay, orders, jobsManager, log),
		errHandler: apperrors.NewHandler(log, cfg.Sentry.Enabled),
	}

	tb.Use(RecoveryMiddleware(log, b.errHandler))
	tb.Use(LoggingMiddleware(log))

	for _, endpoint := range []string{
		telebot.OnText,
		telebot.OnCallback,
		telebot.OnLocation,
		telebot.OnCheckout,
		telebot.OnPayment,
	} {
		tb.Handle(endpoint, b.handleUpdate)
	}

	return b, nil
}

// Start runs the telegram bot event loop.
func (b *Bot) Start() {
	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such
// as health checks and the jobs worker.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

// handleUpdate is the single entrypoint for every update kind. It returns nil
// on all failure paths: each event is handled in isolation and a failure must
// never block the conversation's next event.
func (b *Bot) handleUpdate(c telebot.Context) error {
	start := time.Now()

	ctx, correlationID := logger.WithCorrelationID(context.Background())
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	b.log.Debug("processing update",
		slog.Int("update_id", c.Update().ID),
		slog.String("correlation_id", correlationID))

	chatID, ev, err := event.Normalize(c)
	if err != nil {
		b.errHandler.Handle(ctx, err)
		b.recordError(err)
		metrics.RecordUpdate("unknown", "unroutable", time.Since(start))
		return nil
	}

	kind := ev.Kind()

	if dropped := b.dropDuplicate(ctx, c); dropped {
		metrics.RecordUpdate(kind, "duplicate", time.Since(start))
		return nil
	}

	if limited := b.enforceRateLimit(ctx, c, chatID); limited {
		metrics.RecordUpdate(kind, "rate_limited", time.Since(start))
		return nil
	}

	if err := b.locker.Acquire(ctx, chatID); err != nil {
		if stdErrors.Is(err, session.ErrSessionLocked) {
			// Another delivery for this chat is in flight; drop this one.
			metrics.RecordUpdate(kind, "locked", time.Since(start))
			return nil
		}
		b.failUpdate(ctx, c, err)
		metrics.RecordUpdate(kind, "error", time.Since(start))
		return nil
	}
	defer b.locker.Release(ctx, chatID)

	sess, err := b.storage.GetSession(ctx, chatID)
	switch {
	case stdErrors.Is(err, session.ErrSessionNotFound):
		sess = session.New(chatID)
	case err != nil:
		b.failUpdate(ctx, c, err)
		metrics.RecordUpdate(kind, "error", time.Since(start))
		return nil
	}

	prev := sess.CurrentState

	effects, next, err := b.machine.Step(ctx, sess, ev)
	if err != nil {
		b.failUpdate(ctx, c, err)
		metrics.RecordUpdate(kind, "error", time.Since(start))
		return nil
	}

	if err := b.dispatcher.Dispatch(ctx, sess, effects); err != nil {
		// Effects failed partway: the state is not advanced so the next
		// event re-enters the same handler.
		b.failUpdate(ctx, c, err)
		metrics.RecordUpdate(kind, "error", time.Since(start))
		return nil
	}

	sess.CurrentState = next
	sess.UpdatedAt = time.Now().UTC()

	if err := b.storage.SetSession(ctx, chatID, sess); err != nil {
		b.failUpdate(ctx, c, err)
		metrics.RecordUpdate(kind, "error", time.Since(start))
		return nil
	}

	if prev != next {
		session.RecordTransition(prev, next)
	}

	metrics.RecordUpdate(kind, "ok", time.Since(start))
	return nil
}

// dropDuplicate reports whether this update was already delivered. Guard
// failures are logged and treated as first deliveries: dedupe is best effort.
func (b *Bot) dropDuplicate(ctx context.Context, c telebot.Context) bool {
	if b.guard == nil {
		return false
	}

	update := c.Update()
	if update.ID == 0 {
		return false
	}

	first, err := b.guard.FirstDelivery(ctx, idempotency.KeyForUpdate(update.ID), updateDedupeTTL)
	if err != nil {
		b.log.Error("idempotency guard failed, processing anyway",
			slog.Int("update_id", update.ID), slog.Any("error", err))
		return false
	}

	if !first {
		b.log.Info("dropped duplicate update delivery", slog.Int("update_id", update.ID))
	}

	return !first
}

func (b *Bot) enforceRateLimit(ctx context.Context, c telebot.Context, chatID int64) bool {
	if b.limiter == nil || !b.cfg.RateLimit.Enabled {
		return false
	}

	key := fmt.Sprintf("chat:%d", chatID)
	res, err := b.limiter.Check(ctx, key, b.cfg.RateLimit.Limit, b.cfg.RateLimit.Window)
	if err != nil {
		b.log.Error("rate limiter failed, allowing update",
			slog.Int64("chat_id", chatID), slog.Any("error", err))
		return false
	}

	if res.Allowed {
		return false
	}

	retryAfter := int(time.Until(res.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	appErr := apperrors.NewRateLimitError(retryAfter)
	b.recordError(appErr)
	if sendErr := c.Send(appErr.UserMessage); sendErr != nil {
		b.log.Error("failed to send rate limit notice", slog.Any("error", sendErr))
	}

	return true
}

// failUpdate reports err centrally and sends the resolved apology; the stored
// state stays untouched so the user may retry.
func (b *Bot) failUpdate(ctx context.Context, c telebot.Context, err error) {
	userMsg, _ := b.errHandler.Handle(ctx, err)
	b.recordError(err)

	if userMsg == "" {
		userMsg = apperrors.GenericApology
	}

	if sendErr := c.Send(userMsg); sendErr != nil {
		b.log.Error("failed to notify user about error", slog.Any("error", sendErr))
	}
}

func (b *Bot) recordError(err error) {
	var appErr *apperrors.AppError
	if stdErrors.As(err, &appErr) && appErr != nil {
		metrics.RecordError(appErr.Code, string(appErr.Severity))
		return
	}

	metrics.RecordError("unknown", string(apperrors.SeverityHigh))
}
