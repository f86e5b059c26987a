// Package terminal 是收银终端本地的 HTTP 接口，供界面调用。
// 购物车只存在于终端进程内，提交之后才会写入存储服务
package terminal

import (
	"context"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receipt"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/refund"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/sale"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/shift"
)

type Terminal struct {
	validate   *validator.Validate
	translator ut.Translator

	manager  *shift.Manager
	sales    *sale.Processor
	refunds  *refund.Processor
	receipts *receipt.Service

	mu   sync.Mutex
	cart *domain.Cart
	// 结账进行中时不为空，调用它会取消正在等待的刷卡
	cancelCheckout context.CancelFunc

	Mux *chi.Mux
}

func NewTerminal(manager *shift.Manager, sales *sale.Processor, refunds *refund.Processor, receipts *receipt.Service) (*Terminal, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Terminal{
		validate:   validate,
		translator: trans,
		manager:    manager,
		sales:      sales,
		refunds:    refunds,
		receipts:   receipts,
		cart:       domain.NewCart(),

		Mux: chi.NewRouter(),
	}, nil
}

func (t *Terminal) RegisterRoutes() {
	t.Mux.Use(t.logger)
	t.Mux.Use(t.recoverer)

	t.Mux.Get("/snapshot", t.GetSnapshot)

	t.Mux.Route("/shift", func(r chi.Router) {
		r.Post("/start", t.StartShift)
		r.Post("/end", t.EndShift)
		r.Post("/cash-count", t.CashCount)
		r.Get("/stats", t.GetStats)
	})

	t.Mux.Route("/cart", func(r chi.Router) {
		r.Get("/", t.GetCart)
		r.Post("/", t.AddToCart)
		r.Delete("/", t.ClearCart)
		r.Delete("/{productID}", t.RemoveFromCart)
	})

	t.Mux.Route("/checkout", func(r chi.Router) {
		r.Post("/", t.Checkout)
		r.Post("/cancel", t.CancelCheckout)
		r.Post("/abandon", t.AbandonPending)
	})

	t.Mux.Route("/receipts/{receipt}", func(r chi.Router) {
		r.Post("/reprint", t.ReprintReceipt)
		r.Post("/email", t.EmailReceipt)
	})

	t.Mux.Route("/transactions", func(r chi.Router) {
		r.Get("/recent", t.ListRecent)
		r.Post("/{id}/void", t.VoidTransaction)
	})

	t.Mux.Route("/refunds", func(r chi.Router) {
		r.Get("/lookup", t.LookupRefund)
		r.Post("/", t.CreateRefund)
	})
}
