// Package payment 通过 HTTP 访问刷卡终端
package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("刷卡终端返回错误: %s", e.Status)
	}
	return fmt.Sprintf("刷卡终端返回错误: %s: %s", e.Status, e.Body)
}

type Client struct {
	http *resty.Client
	// 刷卡要等顾客操作，不设超时，只能通过 context 取消
	card *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout).
			SetRetryCount(1).
			SetRetryWaitTime(200 * time.Millisecond).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || (resp != nil && resp.StatusCode() == http.StatusServiceUnavailable)
			}),
		card: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json"),
	}
}

type intentRequest struct {
	Amount    money.Money          `json:"amount"`
	Method    domain.PaymentMethod `json:"method"`
	Reference string               `json:"reference"`
}

func (c *Client) CreateIntent(ctx context.Context, amount money.Money, method domain.PaymentMethod, reference string) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(intentRequest{Amount: amount, Method: method, Reference: reference}).
		SetResult(&intent).
		Post("/intents")
	if err != nil {
		return nil, fmt.Errorf("创建支付意图: %w", err)
	}
	if resp.IsError() {
		return nil, apiErrorFromResponse(resp)
	}
	return &intent, nil
}

// ProcessCardPayment 一直阻塞到顾客完成刷卡、终端拒绝或 ctx 被取消
func (c *Client) ProcessCardPayment(ctx context.Context, intentID string) (*domain.PaymentResult, error) {
	var result domain.PaymentResult
	resp, err := c.card.R().
		SetContext(ctx).
		SetPathParam("id", intentID).
		SetResult(&result).
		Post("/intents/{id}/process")
	if err != nil {
		return nil, fmt.Errorf("刷卡: %w", err)
	}
	if resp.IsError() {
		return nil, apiErrorFromResponse(resp)
	}
	if result.IntentID == "" {
		result.IntentID = intentID
	}
	return &result, nil
}

func (c *Client) CancelPayment(ctx context.Context, intentID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", intentID).
		Post("/intents/{id}/cancel")
	if err != nil {
		return fmt.Errorf("撤销支付意图: %w", err)
	}
	// 已经撤销或已经过期的意图视为撤销成功
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound && resp.StatusCode() != http.StatusConflict {
		return apiErrorFromResponse(resp)
	}
	return nil
}

func apiErrorFromResponse(resp *resty.Response) error {
	return &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       strings.TrimSpace(resp.String()),
	}
}
