package terminal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

// Response 和存储服务使用同样的返回格式，界面只需要处理一种
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

func (t *Terminal) readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decode 读取并校验请求体，失败时已经写好了响应
func (t *Terminal) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := t.readJSON(r, v); err != nil {
		t.badRequest(w, r, err)
		return false
	}
	if err := t.validate.Struct(v); err != nil {
		t.badRequest(w, r, err)
		return false
	}
	return true
}

func (t *Terminal) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("写入响应失败", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

func (t *Terminal) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	t.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}

func (t *Terminal) domainError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := domain.AsError(err)
	if !ok {
		t.internalServerError(w, r, err)
		return
	}

	switch e.Kind {
	case domain.KindCollaborator:
		slog.Warn("外部依赖失败", "path", r.URL.Path, "code", e.Code, "retryable", true, "error", err)
	case domain.KindPolicy:
		slog.Warn("策略自动处理", "path", r.URL.Path, "code", e.Code, "needsManagerReview", true)
	}

	// 待提交的扣款需要带上流水号，界面据此提示操作员
	var data any
	var pending *domain.PendingPaymentError
	if errors.As(err, &pending) {
		data = pending.Payment
	}

	t.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: e.Message,
		Code:    e.Code,
		Data:    data,
	})
}

func (t *Terminal) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	msg := err.Error()
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		msg = validationErrors[0].Translate(t.translator)
	}
	t.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Message: msg,
		Code:    domain.ErrInvalidRequest.Code,
	})
}

func (t *Terminal) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("终端内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
	t.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "终端内部错误",
	})
}
