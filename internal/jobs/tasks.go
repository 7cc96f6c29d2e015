// Package jobs runs background tasks decoupled from update processing.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeOrderFollowUp is the delayed post-payment customer notification.
	TaskTypeOrderFollowUp = "order:followup"
)

const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// OrderFollowUpPayload identifies the chat awaiting the follow-up message.
type OrderFollowUpPayload struct {
	ChatID   int64  `json:"chat_id"`
	OrderRef string `json:"order_ref,omitempty"`
}

// NewOrderFollowUpTask builds the follow-up task; the enqueue delay is the
// caller's concern via asynq.ProcessIn.
func NewOrderFollowUpTask(chatID int64, orderRef string) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderFollowUpPayload{ChatID: chatID, OrderRef: orderRef})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeOrderFollowUp, payload, asynq.Queue(QueueLow)), nil
}
