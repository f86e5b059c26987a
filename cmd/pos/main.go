package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/metrics"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/payment"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/printer"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/queue"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receipt"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/refund"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/remote"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/sale"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/shift"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/terminal"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadTerminalConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	/**********************************************
	 * 登录存储服务
	 **********************************************/
	store := remote.NewClient(cfg.Store.BaseURL, config.Seconds(cfg.Store.Timeout), cfg.Store.RetryCount)
	cashier, err := store.Login(ctx, cfg.Terminal.Username, cfg.Terminal.Password)
	if err != nil {
		logger.Error("无法登录存储服务", "error", err)
		return
	}
	logger.Info("收银员已登录", "cashierID", cashier.ID, "businessID", cashier.BusinessID, "fullName", cashier.FullName)

	/**********************************************
	 * 连接 rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法建立通道", "error", err)
		return
	}
	defer ch.Close()

	if err := queue.Declare(ch); err != nil {
		logger.Error("无法声明队列", "error", err)
		return
	}
	publisher := queue.NewPublisher(ch, config.Seconds(cfg.RabbitMQ.PublishTimeout))

	/**********************************************
	 * 组装核心
	 **********************************************/
	clk := clock.New()
	m := metrics.New(nil)

	policy := shift.Policy{
		EarlyStartWindow:   config.Minutes(cfg.Shift.EarlyStartWindow),
		LateStartThreshold: config.Minutes(cfg.Shift.LateStartThreshold),
		OvertimeWarning:    config.Minutes(cfg.Shift.OvertimeWarning),
		AutoEndAfter:       config.Minutes(cfg.Shift.AutoEndAfter),
	}
	manager, err := shift.NewManager(store, clk, policy, cashier.ID, cashier.BusinessID)
	if err != nil {
		logger.Error("无法创建班次管理器", "error", err)
		return
	}
	manager.WithMetrics(m)

	// 终端重启后从存储服务恢复进行中的班次
	if err := manager.Refresh(ctx); err != nil {
		logger.Warn("无法从存储服务恢复班次，稍后由定时任务重试", "error", err)
	}

	receipts := receipt.NewService(
		printer.NewClient(cfg.Printer.BaseURL, config.Seconds(cfg.Printer.Timeout)),
		store,
		receipt.WithMailer(publisher),
		receipt.WithMetrics(m),
		receipt.WithRetry(cfg.Printer.Retries, time.Duration(cfg.Printer.RetryBackoff)*time.Millisecond),
	)
	sales := sale.NewProcessor(manager, store, payment.NewClient(cfg.Payment.BaseURL, config.Seconds(cfg.Payment.Timeout)), receipts, clk, m)
	refunds := refund.NewProcessor(manager, store, store, publisher, receipts, clk, m)
	manager.WithEndGuard(sales.Busy)

	watchdog := shift.NewWatchdog(manager, clk,
		config.Seconds(cfg.Watchdog.RefreshInterval),
		config.Seconds(cfg.Watchdog.OvertimeInterval),
		shift.WithOvertimeHook(func(o shift.Overtime) {
			if o.Warning && !o.AutoEnded {
				logger.Warn("班次已超时，请尽快结班", "minutes", o.Minutes)
			}
		}),
	)

	/**********************************************
	 * 创建终端接口
	 **********************************************/
	t, err := terminal.NewTerminal(manager, sales, refunds, receipts)
	if err != nil {
		logger.Error("无法创建终端接口", "error", err)
		return
	}
	t.RegisterRoutes()
	t.Mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:     fmt.Sprintf("127.0.0.1:%s", cfg.Terminal.Port),
		Handler:  t.Mux,
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	/**********************************************
	 * 启动定时任务和 HTTP 服务器
	 **********************************************/
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watchdog.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("正在启动终端接口...", "port", cfg.Terminal.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("正在关闭终端...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.Terminal.ShutdownTimeout))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("终端异常退出", "error", err)
		return
	}
	if sales.HasPending() {
		logger.Warn("有一笔已扣款的交易尚未提交成功，重启后需要人工核对")
	}
	logger.Info("终端已成功关闭")
}
