package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/ports"
)

// Store 是存储服务的持久化层，repository 和 memstore 都实现了它
type Store interface {
	ports.Store
	GetShift(ctx context.Context, id int64) (*domain.Shift, error)
	ApproveShift(ctx context.Context, shiftID, approverID int64) (*domain.Shift, error)
	GetStaffByUsername(ctx context.Context, username string) (*domain.Staff, error)
	GetStaffByID(ctx context.Context, id int64) (*domain.Staff, error)
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	store      Store
	locker     ShiftLocker
	metrics    *metrics.Metrics
	clock      clock.Clock
	translator ut.Translator

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, store Store, locker ShiftLocker, m *metrics.Metrics, clk clock.Clock) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	if clk == nil {
		clk = clock.New()
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		store:      store,
		locker:     locker,
		metrics:    m,
		clock:      clk,
		translator: trans,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Handle("/metrics", promhttp.Handler())

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.With(h.myInfo).Get("/me", h.GetMyInfo)

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/today", h.GetTodaySchedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.schedule)
				r.Get("/", h.GetSchedule)
				r.Post("/missed", h.MarkScheduleMissed)
			})
		})

		r.Route("/shifts", func(r chi.Router) {
			r.Post("/", h.StartShift)
			r.Get("/active", h.GetActiveShift)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.shift)
				r.Get("/", h.GetShift)
				r.Get("/stats", h.GetShiftStats)
				r.Get("/transactions", h.ListRecentTransactions)
				r.Post("/end", h.EndShift)
				r.With(h.RequiredRole([]domain.Role{domain.RoleSupervisor, domain.RoleManager})).Post("/approve", h.ApproveShift)
			})
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.CreateTransaction)
			r.Get("/by-receipt/{receipt}", h.GetTransactionByReceipt)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.transaction)
				r.Get("/", h.GetTransaction)
				r.Post("/void", h.VoidTransaction)
			})
		})

		r.Post("/refunds", h.CreateRefund)
	})
}
