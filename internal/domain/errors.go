package domain

import (
	"errors"
	"fmt"
)

// Kind 区分错误的处理方式：
//  1. validation: 输入不合法，在任何修改之前拒绝
//  2. precondition: 状态不满足（没有班次、班次已结束等），不做任何修改
//  3. collaborator: 外部协作方失败（支付、打印、网络），可以重试
//  4. policy: 策略触发的自动动作，不是用户错误
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition"
	KindCollaborator Kind = "collaborator"
	KindPolicy       Kind = "policy"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Code 匹配，这样带有具体信息的副本仍然能和哨兵错误比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Retryable() bool {
	return e.Kind == KindCollaborator
}

// Withf 返回一个带有具体信息的副本
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

// Wrap 返回一个包裹底层错误的副本
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	// 输入校验
	ErrInvalidAmount    = newError(KindValidation, "invalid_amount", "金额无效")
	ErrEmptyCart        = newError(KindValidation, "empty_cart", "购物车为空")
	ErrInvalidCartLine  = newError(KindValidation, "invalid_cart_line", "购物车商品行无效")
	ErrInsufficientCash = newError(KindValidation, "insufficient_cash", "现金不足")
	ErrInvalidPayment   = newError(KindValidation, "invalid_payment", "支付方式无效")
	ErrMissingContext   = newError(KindValidation, "missing_context", "缺少门店或收银员信息")
	ErrInvalidRefund    = newError(KindValidation, "invalid_refund", "退款请求无效")
	ErrOverRefund       = newError(KindValidation, "over_refund", "退款数量超过可退数量")
	ErrInvalidRequest   = newError(KindValidation, "invalid_request", "请求参数无效")

	// 状态前置条件
	ErrNoActiveShift        = newError(KindPrecondition, "no_active_shift", "当前没有进行中的班次")
	ErrShiftAlreadyActive   = newError(KindPrecondition, "shift_already_active", "已有进行中的班次")
	ErrShiftEnded           = newError(KindPrecondition, "shift_ended", "班次已结束")
	ErrShiftNotFound        = newError(KindPrecondition, "shift_not_found", "班次不存在")
	ErrNoSchedule           = newError(KindPrecondition, "no_schedule", "今天没有排班")
	ErrScheduleNotFound     = newError(KindPrecondition, "schedule_not_found", "排班不存在")
	ErrTooEarly             = newError(KindPrecondition, "too_early", "距离排班开始时间过早")
	ErrLateStartUnconfirmed = newError(KindPrecondition, "late_start_unconfirmed", "迟到开班需要确认")
	ErrTransactionNotFound  = newError(KindPrecondition, "transaction_not_found", "交易不存在")
	ErrVoidNotAllowed       = newError(KindPrecondition, "void_not_allowed", "该交易不允许作废")
	ErrUnauthorized         = newError(KindPrecondition, "unauthorized", "用户未登录或令牌无效")
	ErrForbidden            = newError(KindPrecondition, "forbidden", "权限不足")
	ErrConflict             = newError(KindPrecondition, "conflict", "数据已被修改，请重试")
	ErrPaymentPending       = newError(KindPrecondition, "payment_pending", "有一笔已扣款的交易还没有提交")

	// 外部协作方
	ErrPaymentDeclined    = newError(KindCollaborator, "payment_declined", "支付被拒绝")
	ErrPaymentFailed      = newError(KindCollaborator, "payment_failed", "支付失败")
	ErrPaymentCanceled    = newError(KindCollaborator, "payment_canceled", "支付已取消")
	ErrPrinterUnavailable = newError(KindCollaborator, "printer_unavailable", "打印机不可用")
	ErrStoreUnavailable   = newError(KindCollaborator, "store_unavailable", "无法连接到存储服务")
	ErrPublishFailed      = newError(KindCollaborator, "publish_failed", "消息发送失败")

	// 策略
	ErrAutoEnded = newError(KindPolicy, "auto_ended", "班次超时已自动结束，需要经理审核")
)

var sentinels = []*Error{
	ErrInvalidAmount, ErrEmptyCart, ErrInvalidCartLine, ErrInsufficientCash, ErrInvalidPayment,
	ErrMissingContext, ErrInvalidRefund, ErrOverRefund, ErrInvalidRequest,
	ErrNoActiveShift, ErrShiftAlreadyActive, ErrShiftEnded, ErrShiftNotFound, ErrNoSchedule,
	ErrScheduleNotFound, ErrTooEarly, ErrLateStartUnconfirmed, ErrTransactionNotFound,
	ErrVoidNotAllowed, ErrUnauthorized, ErrForbidden, ErrConflict, ErrPaymentPending,
	ErrPaymentDeclined, ErrPaymentFailed, ErrPaymentCanceled, ErrPrinterUnavailable,
	ErrStoreUnavailable, ErrPublishFailed,
	ErrAutoEnded,
}

// ErrorFromCode 在客户端把服务端返回的 code 还原为对应的错误
func ErrorFromCode(code, msg string) *Error {
	for _, s := range sentinels {
		if s.Code == code {
			if msg == "" {
				return s
			}
			return &Error{Kind: s.Kind, Code: s.Code, Message: msg}
		}
	}
	return nil
}

// PendingPaymentError 表示已扣款的交易还没有提交，Payment 告诉操作员是哪一笔扣款。
// errors.Is 可以和 ErrPaymentPending 比较
type PendingPaymentError struct {
	Err     *Error
	Payment PendingPayment
}

func (e *PendingPaymentError) Error() string {
	return e.Err.Error()
}

func (e *PendingPaymentError) Unwrap() error {
	return e.Err
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable()
	}
	return false
}

// FromStore 保留存储服务返回的领域错误，其他错误视为网络故障
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return ErrStoreUnavailable.Wrap(err)
}
