// Package printer 通过 HTTP 访问小票打印机
package printer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

type Client struct {
	http *resty.Client
}

// NewClient 不在 HTTP 层重试，打印的重试和放弃由 receipt 包决定
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(timeout),
	}
}

func (c *Client) GetStatus(ctx context.Context) (*domain.PrinterStatus, error) {
	var status domain.PrinterStatus
	resp, err := c.http.R().SetContext(ctx).SetResult(&status).Get("/status")
	if err != nil {
		return nil, domain.ErrPrinterUnavailable.Wrap(err)
	}
	if resp.IsError() {
		return nil, domain.ErrPrinterUnavailable.Wrap(fmt.Errorf("%s: %s", resp.Status(), strings.TrimSpace(resp.String())))
	}
	return &status, nil
}

func (c *Client) Print(ctx context.Context, receipt *domain.ReceiptData) error {
	resp, err := c.http.R().SetContext(ctx).SetBody(receipt).Post("/print")
	if err != nil {
		return domain.ErrPrinterUnavailable.Wrap(err)
	}
	if resp.IsError() {
		return domain.ErrPrinterUnavailable.Wrap(fmt.Errorf("%s: %s", resp.Status(), strings.TrimSpace(resp.String())))
	}
	return nil
}
