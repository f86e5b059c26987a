package domain

// MailMessage 是邮件队列中的消息，Type 决定邮件服务使用哪个模板
type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

const MailTypeReceipt = "receipt"

// RestockMessage 是发往库存服务的补货事件
type RestockMessage struct {
	BusinessID int64         `json:"businessID"`
	Items      []RestockItem `json:"items"`
}
