package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

type published struct {
	key string
	msg amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _ string, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: key, msg: msg})
	return nil
}

func TestSendReceipt(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, 0)

	err := p.SendReceipt(context.Background(), "guest@example.com", &domain.ReceiptData{ReceiptNumber: "R1-20261019-00001", Total: "6.00"})
	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, EmailQueue, ch.sent[0].key)
	assert.Equal(t, "R1-20261019-00001", ch.sent[0].msg.MessageId)

	var msg struct {
		Type string             `json:"type"`
		To   string             `json:"to"`
		Data domain.ReceiptData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &msg))
	assert.Equal(t, domain.MailTypeReceipt, msg.Type)
	assert.Equal(t, "guest@example.com", msg.To)
	assert.Equal(t, "6.00", msg.Data.Total)
}

func TestRestock(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, 0)

	require.NoError(t, p.Restock(context.Background(), 12, []domain.RestockItem{{ProductID: "mug", Quantity: 2}}))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, RestockQueue, ch.sent[0].key)

	var msg domain.RestockMessage
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &msg))
	assert.Equal(t, int64(12), msg.BusinessID)
	assert.Equal(t, int32(2), msg.Items[0].Quantity)
}

func TestPublishFailure(t *testing.T) {
	p := NewPublisher(&fakeChannel{err: errors.New("channel closed")}, 0)

	err := p.Restock(context.Background(), 12, nil)
	assert.ErrorIs(t, err, domain.ErrPublishFailed)
	assert.True(t, domain.IsRetryable(err))
}
