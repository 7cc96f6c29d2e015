package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov-go/pizzeria-bot/internal/flow"
	"github.com/avolkov-go/pizzeria-bot/internal/repository"
	"github.com/avolkov-go/pizzeria-bot/internal/session"
	"github.com/avolkov-go/pizzeria-bot/pkg/config"
)

type captureOrderLog struct {
	records []repository.OrderRecord
}

func (c *captureOrderLog) Record(_ context.Context, rec repository.OrderRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func (c *captureOrderLog) CountSince(context.Context, time.Time) (int64, error) {
	return int64(len(c.records)), nil
}

func TestDispatch_RecordOrderKeepsReferenceAfterSessionReset(t *testing.T) {
	orders := &captureOrderLog{}
	d := NewDispatcher(nil, config.BotConfig{Currency: "RUB"}, time.Hour, orders, nil, nil)

	// The payment handler clears the order scratch before effects run, so
	// the record must come entirely from the effect.
	sess := session.New(42)
	sess.Order = session.PendingOrder{}

	err := d.Dispatch(context.Background(), sess, []flow.Effect{
		flow.RecordOrder{PizzeriaID: "pz1", OrderRef: "order-1", TotalKopecks: 135800},
	})
	require.NoError(t, err)

	require.Len(t, orders.records, 1)
	rec := orders.records[0]
	assert.Equal(t, int64(42), rec.ChatID)
	assert.Equal(t, "pz1", rec.PizzeriaID)
	assert.Equal(t, "order-1", rec.OrderRef)
	assert.Equal(t, int64(135800), rec.TotalKopecks)
	assert.Equal(t, "RUB", rec.Currency)
	assert.False(t, rec.PaidAt.IsZero())
}

func TestMarkupFor_Inline(t *testing.T) {
	markup := markupFor([][]flow.Button{
		{{Text: "Маргарита", Data: "product:p1"}},
		{{Text: "Корзина", Data: "cart"}},
	}, nil, false)

	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "product:p1", markup.InlineKeyboard[0][0].Data)
	assert.Equal(t, "Маргарита", markup.InlineKeyboard[0][0].Text)
	assert.Empty(t, markup.ReplyKeyboard)
}

func TestMarkupFor_ReplyWithLocationRequest(t *testing.T) {
	markup := markupFor(nil, [][]flow.Button{
		{{Text: "Отправить геолокацию", RequestLocation: true}},
	}, false)

	require.NotNil(t, markup)
	require.Len(t, markup.ReplyKeyboard, 1)
	assert.True(t, markup.ReplyKeyboard[0][0].Location)
	assert.False(t, markup.RemoveKeyboard)
}

func TestMarkupFor_RemoveKeyboard(t *testing.T) {
	markup := markupFor(nil, nil, true)

	require.NotNil(t, markup)
	assert.True(t, markup.RemoveKeyboard)
}

func TestMarkupFor_NilWhenNothingToRender(t *testing.T) {
	assert.Nil(t, markupFor(nil, nil, false))
	assert.Empty(t, sendOptions(nil))
}
