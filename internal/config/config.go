package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 是存储服务、邮件服务和种子数据共用的配置
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	InitialAdmin struct {
		Username   string `env:"USERNAME" envDefault:"admin"`
		Password   string `env:"PASSWORD,required"`
		FullName   string `env:"FULL_NAME" envDefault:"店长"`
		Email      string `env:"EMAIL,required"`
		BusinessID int64  `env:"BUSINESS_ID" envDefault:"1"`
	} `envPrefix:"INITIAL_ADMIN_"`
	JWT struct {
		Expiration int    `env:"EXPIRATION" envDefault:"43200"` // 12 小时，覆盖一个完整班次
		Secret     string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Seed struct {
		Staff struct {
			Password string `env:"PASSWORD,required"`
			Count    int    `env:"COUNT" envDefault:"8"`
		} `envPrefix:"STAFF_"`
		BusinessID int64 `env:"BUSINESS_ID" envDefault:"1"`
	} `envPrefix:"SEED_"`
	Email struct {
		UserDomain string `env:"USER_DOMAIN" envDefault:"example.com"`
		SMTP       struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD,required"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"` // 开班锁的有效期
	} `envPrefix:"REDIS_"`
}

// TerminalConfig 是收银终端进程的配置
type TerminalConfig struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Terminal    struct {
		Port            string `env:"PORT" envDefault:"4000"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
		Username        string `env:"USERNAME,required"`
		Password        string `env:"PASSWORD,required"`
	} `envPrefix:"TERMINAL_"`
	Store struct {
		BaseURL    string `env:"BASE_URL,required"`
		Timeout    int    `env:"TIMEOUT" envDefault:"10"`
		RetryCount int    `env:"RETRY_COUNT" envDefault:"2"`
	} `envPrefix:"STORE_"`
	Payment struct {
		BaseURL string `env:"BASE_URL,required"`
		Timeout int    `env:"TIMEOUT" envDefault:"10"` // 只用于创建和撤销支付意图，刷卡本身没有超时
	} `envPrefix:"PAYMENT_"`
	Printer struct {
		BaseURL      string `env:"BASE_URL,required"`
		Timeout      int    `env:"TIMEOUT" envDefault:"5"`
		Retries      int    `env:"RETRIES" envDefault:"3"`
		RetryBackoff int    `env:"RETRY_BACKOFF" envDefault:"500"` // 毫秒
	} `envPrefix:"PRINTER_"`
	Shift struct {
		EarlyStartWindow   int `env:"EARLY_START_WINDOW" envDefault:"15"` // 分钟
		LateStartThreshold int `env:"LATE_START_THRESHOLD" envDefault:"30"`
		OvertimeWarning    int `env:"OVERTIME_WARNING" envDefault:"15"`
		AutoEndAfter       int `env:"AUTO_END_AFTER" envDefault:"120"`
	} `envPrefix:"SHIFT_"`
	Watchdog struct {
		RefreshInterval  int `env:"REFRESH_INTERVAL" envDefault:"30"` // 秒
		OvertimeInterval int `env:"OVERTIME_INTERVAL" envDefault:"60"`
	} `envPrefix:"WATCHDOG_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadTerminalConfig() (*TerminalConfig, error) {
	cfg := &TerminalConfig{}
	if err := parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(v any) error {
	if err := env.Parse(v); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return aggErr.Errors[0]
		}
		return err
	}
	return nil
}

func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
