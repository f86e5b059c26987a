// Package queue 通过 RabbitMQ 发送小票邮件和补货事件，消费端分别是邮件服务和库存服务
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const (
	EmailQueue   = "email_queue"
	RestockQueue = "inventory_restock_queue"
)

// Channel 是 *amqp.Channel 中用到的部分
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Publisher struct {
	ch      Channel
	timeout time.Duration
}

func NewPublisher(ch Channel, timeout time.Duration) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{ch: ch, timeout: timeout}
}

// Declare 声明两个持久化队列，发送端和消费端都会调用
func Declare(ch *amqp.Channel) error {
	for _, name := range []string{EmailQueue, RestockQueue} {
		if _, err := ch.QueueDeclare(
			name,  // 队列名称
			true,  // 是否持久化
			false, // 是否自动删除
			false, // 是否独占
			false, // 是否不等待
			nil,   // 额外参数
		); err != nil {
			return fmt.Errorf("无法声明队列 %s: %w", name, err)
		}
	}
	return nil
}

// SendReceipt 把小票邮件放入邮件队列
func (p *Publisher) SendReceipt(ctx context.Context, to string, receipt *domain.ReceiptData) error {
	return p.publish(ctx, EmailQueue, domain.MailMessage{
		Type: domain.MailTypeReceipt,
		To:   to,
		Data: receipt,
	}, receipt.ReceiptNumber)
}

// Restock 发送补货事件
func (p *Publisher) Restock(ctx context.Context, businessID int64, items []domain.RestockItem) error {
	return p.publish(ctx, RestockQueue, domain.RestockMessage{
		BusinessID: businessID,
		Items:      items,
	}, "")
}

func (p *Publisher) publish(ctx context.Context, queue string, v any, messageID string) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ch.PublishWithContext(
		ctx,
		"",
		queue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	); err != nil {
		return domain.ErrPublishFailed.Wrap(err)
	}

	return nil
}
