package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

// receiptMessage 是邮件队列中小票消息的具体格式
type receiptMessage struct {
	Type string             `json:"type"`
	To   string             `json:"to"`
	Data domain.ReceiptData `json:"data"`
}

type receiptMailer struct {
	from string
	tmpl *template.Template
}

func newReceiptMailer(from, templatePath string) (*receiptMailer, error) {
	tmpl, err := template.ParseFiles(templatePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析邮件模板: %w", err)
	}
	return &receiptMailer{from: from, tmpl: tmpl}, nil
}

func (r *receiptMailer) render(data *domain.ReceiptData) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// build 把队列消息转换成邮件。返回错误说明消息本身有问题，重新入队也不会成功
func (r *receiptMailer) build(body []byte) (*mail.Msg, error) {
	var message receiptMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("邮件信息反序列化失败: %w", err)
	}
	if message.Type != domain.MailTypeReceipt {
		return nil, fmt.Errorf("不支持的邮件类型: %s", message.Type)
	}

	html, err := r.render(&message.Data)
	if err != nil {
		return nil, fmt.Errorf("无法渲染邮件正文: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(r.from); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(message.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}
	if message.Data.Type == domain.TransactionRefund {
		msg.Subject("退款小票 " + message.Data.ReceiptNumber)
	} else {
		msg.Subject("电子小票 " + message.Data.ReceiptNumber)
	}
	msg.SetBodyString(mail.TypeTextHTML, html)

	return msg, nil
}
