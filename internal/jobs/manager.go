package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	ScheduleFollowUp(ctx context.Context, chatID int64, orderRef string, delay time.Duration) error
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

// ScheduleFollowUp enqueues the post-payment notification to fire after delay.
func (m *manager) ScheduleFollowUp(ctx context.Context, chatID int64, orderRef string, delay time.Duration) error {
	task, err := NewOrderFollowUpTask(chatID, orderRef)
	if err != nil {
		return err
	}

	info, err := m.client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	m.log.Info("scheduled order follow-up",
		slog.Int64("chat_id", chatID),
		slog.String("task_id", info.ID),
		slog.Duration("delay", delay),
	)

	return nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
