package terminal

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/money"
)

type CartView struct {
	Lines         []domain.CartLine `json:"lines"`
	Subtotal      money.Money       `json:"subtotal"`
	Tax           money.Money       `json:"tax"`
	Total         money.Money       `json:"total"`
	CheckingOut   bool              `json:"checkingOut"`
	PendingCommit bool              `json:"pendingCommit"` // 已扣款但还没有提交成功，再次结账不会重复扣款
}

// viewLocked 调用前必须持有 t.mu。结账进行中时 sale.Processor 被占用，不能查询待提交状态
func (t *Terminal) viewLocked() CartView {
	cart := t.cart.Clone()
	checkingOut := t.cancelCheckout != nil
	return CartView{
		Lines:         cart.Lines,
		Subtotal:      cart.Subtotal(),
		Tax:           cart.Tax(),
		Total:         cart.Total(),
		CheckingOut:   checkingOut,
		PendingCommit: !checkingOut && t.sales.HasPending(),
	}
}

// editCart 在购物车没有处于结账状态、也没有已扣款未提交的交易时修改它
func (t *Terminal) editCart(w http.ResponseWriter, r *http.Request, msg string, edit func(cart *domain.Cart) error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelCheckout != nil {
		t.domainError(w, r, domain.ErrConflict.Withf("正在结账，不能修改购物车"))
		return
	}
	// 已扣款的交易只能用同一个购物车重新提交
	if t.sales.HasPending() {
		t.domainError(w, r, domain.ErrConflict.Withf("有已扣款但未提交的交易，请先重新结账或撤销扣款"))
		return
	}
	if err := edit(t.cart); err != nil {
		t.domainError(w, r, err)
		return
	}

	t.successResponse(w, r, msg, t.viewLocked())
}

func (t *Terminal) GetCart(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	view := t.viewLocked()
	t.mu.Unlock()

	t.successResponse(w, r, "获取购物车成功", view)
}

func (t *Terminal) AddToCart(w http.ResponseWriter, r *http.Request) {
	var line domain.CartLine
	if !t.decode(w, r, &line) {
		return
	}

	t.editCart(w, r, "已加入购物车", func(cart *domain.Cart) error {
		cart.Add(line)
		return nil
	})
}

func (t *Terminal) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	t.editCart(w, r, "已移出购物车", func(cart *domain.Cart) error {
		if !cart.Remove(productID) {
			return domain.ErrInvalidCartLine.Withf("购物车中没有商品 %s", productID)
		}
		return nil
	})
}

func (t *Terminal) ClearCart(w http.ResponseWriter, r *http.Request) {
	t.editCart(w, r, "已清空购物车", func(cart *domain.Cart) error {
		cart.Clear()
		return nil
	})
}

// Checkout 会一直阻塞到刷卡完成，期间可以通过 CancelCheckout 取消
func (t *Terminal) Checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method     domain.PaymentMethod `json:"method" validate:"required,oneof=cash card mobile mixed"`
		CashAmount string               `json:"cashAmount"`
	}
	if !t.decode(w, r, &req) {
		return
	}

	sel := domain.PaymentSelection{Method: req.Method}
	if req.CashAmount != "" {
		amount, err := money.Parse(req.CashAmount)
		if err != nil {
			t.domainError(w, r, domain.ErrInvalidAmount.Withf("现金金额无效：%q", req.CashAmount))
			return
		}
		sel.CashAmount = amount
	}

	t.mu.Lock()
	if t.cancelCheckout != nil {
		t.mu.Unlock()
		t.domainError(w, r, domain.ErrConflict.Withf("已有一笔结账在进行中"))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	t.cancelCheckout = cancel
	cart := t.cart.Clone()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.cancelCheckout = nil
		t.mu.Unlock()
		cancel()
	}()

	res, err := t.sales.Complete(ctx, cart, sel)
	if err != nil {
		t.domainError(w, r, err)
		return
	}

	// 结账期间购物车不能被修改，提交成功后直接清空
	t.mu.Lock()
	t.cart.Clear()
	t.mu.Unlock()

	t.successResponse(w, r, "交易已完成", res)
}

func (t *Terminal) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	cancel := t.cancelCheckout
	t.mu.Unlock()

	if cancel == nil {
		t.successResponse(w, r, "当前没有进行中的结账", map[string]bool{"canceled": false})
		return
	}

	cancel()
	t.successResponse(w, r, "已取消结账", map[string]bool{"canceled": true})
}

// AbandonPending 撤销已扣款但未提交的交易的扣款，之后购物车可以重新编辑
func (t *Terminal) AbandonPending(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	busy := t.cancelCheckout != nil
	t.mu.Unlock()
	if busy {
		t.domainError(w, r, domain.ErrConflict.Withf("正在结账，请先完成或取消"))
		return
	}

	payment, err := t.sales.Abandon(r.Context())
	if err != nil {
		t.domainError(w, r, err)
		return
	}
	if payment == nil {
		t.successResponse(w, r, "没有需要撤销的扣款", nil)
		return
	}

	t.successResponse(w, r, "已撤销扣款", payment)
}
