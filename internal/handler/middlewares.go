package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const TokenCookieName = "__ecnc_pos_token"

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		slog.Info("已处理请求", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.internalServerError(w, r, fmt.Errorf("panic: %v", err))
				stackTrace := string(debug.Stack())
				fmt.Print(stackTrace) // 这里如果用 slog 的话会很乱
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// tokenFromRequest 终端使用 Authorization 头，浏览器使用 cookie
func tokenFromRequest(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		return strings.TrimSpace(token), ok
	}
	cookie, err := r.Cookie(TokenCookieName)
	if err != nil {
		return "", false
	}
	return cookie.Value, true
}

func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := tokenFromRequest(r)
		if !ok || tokenString == "" {
			h.domainError(w, r, domain.ErrUnauthorized.Withf("用户未登录"))
			return
		}

		// 验证 token
		claims := &AuthClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.config.JWT.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.clock.Now))
		if err != nil {
			h.domainError(w, r, domain.ErrUnauthorized.Withf("无效的令牌"))
			return
		}

		// 将 claims 中的 role、sub 和门店附在 context 中
		ctx := r.Context()
		ctx = context.WithValue(ctx, RoleCtxKey, claims.Role)
		ctx = context.WithValue(ctx, SubCtxKey, claims.Subject)
		ctx = context.WithValue(ctx, BusinessCtxKey, claims.BusinessID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) myInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := actorID(r)
		if err != nil {
			h.internalServerError(w, r, err)
			return
		}

		staff, err := h.store.GetStaffByID(r.Context(), sub)
		if err != nil {
			h.internalServerError(w, r, err)
			return
		}
		if staff == nil {
			h.errorResponse(w, r, "个人信息不存在")
			return
		}

		ctx := context.WithValue(r.Context(), StaffCtx, staff)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) RequiredRole(roles []domain.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleCtx := r.Context().Value(RoleCtxKey).(string)
			role := domain.Role(roleCtx)
			if !slices.Contains(roles, role) {
				h.domainError(w, r, domain.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorID(r *http.Request) (int64, error) {
	subString, _ := r.Context().Value(SubCtxKey).(string)
	return strconv.ParseInt(subString, 10, 64)
}

// authorize 检查当前用户能否操作某个收银员在某个门店的数据。
// 收银员只能操作自己的数据，主管和经理可以操作本门店所有收银员的数据
func (h *Handler) authorize(r *http.Request, cashierID, businessID int64) error {
	business, _ := r.Context().Value(BusinessCtxKey).(int64)
	if business != businessID {
		return domain.ErrForbidden.Withf("不能操作其他门店的数据")
	}

	role, _ := r.Context().Value(RoleCtxKey).(string)
	if domain.Role(role) != domain.RoleCashier {
		return nil
	}

	sub, err := actorID(r)
	if err != nil || sub != cashierID {
		return domain.ErrForbidden.Withf("不能操作其他收银员的数据")
	}
	return nil
}

// authorizeBusiness 只检查门店，用于查询交易等同门店共享的数据
func (h *Handler) authorizeBusiness(r *http.Request, businessID int64) error {
	business, _ := r.Context().Value(BusinessCtxKey).(int64)
	if business != businessID {
		return domain.ErrForbidden.Withf("不能查看其他门店的数据")
	}
	return nil
}

func urlID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *Handler) schedule(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r)
		if err != nil {
			h.domainError(w, r, domain.ErrInvalidRequest.Withf("排班ID无效"))
			return
		}

		schedule, err := h.store.GetSchedule(r.Context(), id)
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		if err := h.authorize(r, schedule.StaffID, schedule.BusinessID); err != nil {
			h.domainError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ScheduleCtx, schedule)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) shift(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r)
		if err != nil {
			h.domainError(w, r, domain.ErrInvalidRequest.Withf("班次ID无效"))
			return
		}

		shift, err := h.store.GetShift(r.Context(), id)
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		if err := h.authorize(r, shift.CashierID, shift.BusinessID); err != nil {
			h.domainError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), ShiftCtx, shift)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) transaction(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := urlID(r)
		if err != nil {
			h.domainError(w, r, domain.ErrInvalidRequest.Withf("交易ID无效"))
			return
		}

		txn, err := h.store.GetTransactionByID(r.Context(), id)
		if err != nil {
			h.storeError(w, r, err)
			return
		}
		if err := h.authorizeBusiness(r, txn.BusinessID); err != nil {
			h.domainError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), TransactionCtx, txn)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeError 领域错误原样返回，其他都是数据库故障
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := domain.AsError(err); ok {
		h.domainError(w, r, err)
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.domainError(w, r, domain.ErrStoreUnavailable.Wrap(err))
		return
	}
	h.internalServerError(w, r, err)
}
