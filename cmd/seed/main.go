package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/clock"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/receiptno"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var dayStr string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机员工, 2: 插入当天排班)")
	flag.IntVar(&n, "n", 0, "要插入的员工数量，默认使用配置中的数量")
	flag.StringVar(&dayStr, "day", "", "排班日期，格式为 2006-01-02，默认是今天")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(config.Seconds(cfg.Database.MaxIdleTime))

	ctx, cancel := context.WithTimeout(context.Background(), config.Seconds(cfg.Database.ConnectTimeout))
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 种子数据不会提交交易，小票号生成器用内存实现即可
	repo := repository.NewRepository(cfg, dbpool, receiptno.NewSequence(), clock.New())

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			n = cfg.Seed.Staff.Count
		}
		cnt := seed.SeedStaff(context.Background(), repo, n, cfg.Seed.Staff.Password, cfg.Email.UserDomain, cfg.Seed.BusinessID)
		slog.Info("插入员工成功", slog.Int("count", cnt))
	case 2:
		day := time.Now()
		if dayStr != "" {
			day, err = time.ParseInLocation("2006-01-02", dayStr, time.Local)
			if err != nil {
				slog.Error("日期格式错误", slog.String("day", dayStr))
				return
			}
		}
		cnt, err := seed.SeedSchedules(context.Background(), repo, cfg.Seed.BusinessID, day)
		if err != nil {
			slog.Error("无法插入排班", slog.String("error", err.Error()))
			return
		}
		slog.Info("插入排班成功", slog.Int("count", cnt), slog.String("day", day.Format("2006-01-02")))
	default:
		slog.Error("不支持的操作", slog.Int("op", op))
	}
}
