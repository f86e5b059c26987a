// Package remote 是终端访问存储服务的 HTTP 客户端，实现了 ports.Store。
// 服务端按错误码返回领域错误，这里再还原成同一个哨兵错误
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sysu-ecnc-dev/shift-manager/pos/internal/domain"
)

const idempotencyHeader = "Idempotency-Key"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type credentials struct {
	username string
	password string
}

type Client struct {
	http *resty.Client

	mu    sync.Mutex
	token string
	creds *credentials
}

func NewClient(baseURL string, timeout time.Duration, retries int) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// 只重试查询和带幂等键的提交，开班等请求重试可能得到不同的结果
			if resp == nil || resp.Request == nil {
				return false
			}
			if resp.Request.Method != http.MethodGet && resp.Request.Header.Get(idempotencyHeader) == "" {
				return false
			}
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{http: httpClient}
}

// LoginResult 与服务端登录接口返回的数据一致
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
	Staff     *domain.Staff `json:"staff"`
}

// Login 登录并记住凭据，令牌过期后会自动重新登录一次
func (c *Client) Login(ctx context.Context, username, password string) (*domain.Staff, error) {
	res, err := c.login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.creds = &credentials{username: username, password: password}
	c.mu.Unlock()

	return res.Staff, nil
}

func (c *Client) login(ctx context.Context, username, password string) (*LoginResult, error) {
	res, err := call[LoginResult](ctx, c, http.MethodPost, "/auth/login", nil, map[string]string{
		"username": username,
		"password": password,
	}, "")
	if err != nil {
		return nil, err
	}
	if res == nil || res.Token == "" {
		return nil, domain.ErrUnauthorized
	}

	c.mu.Lock()
	c.token = res.Token
	c.mu.Unlock()

	return res, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// relogin 在令牌失效时用记住的凭据重新登录
func (c *Client) relogin(ctx context.Context) bool {
	c.mu.Lock()
	creds := c.creds
	c.mu.Unlock()

	if creds == nil {
		return false
	}
	_, err := c.login(ctx, creds.username, creds.password)
	return err == nil
}

type request struct {
	method string
	path   string
	params map[string]string
	body   any
	key    string
}

// call 发送请求并解析统一返回格式，data 为 null 时返回 (nil, nil)
func call[T any](ctx context.Context, c *Client, method, path string, params map[string]string, body any, key string) (*T, error) {
	req := request{method: method, path: path, params: params, body: body, key: key}

	data, err := c.execute(ctx, req)
	if errors.Is(err, domain.ErrUnauthorized) && path != "/auth/login" && c.relogin(ctx) {
		data, err = c.execute(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, domain.ErrStoreUnavailable.Wrap(fmt.Errorf("解析响应失败: %w", err))
	}
	return &v, nil
}

func (c *Client) execute(ctx context.Context, r request) (json.RawMessage, error) {
	var env envelope
	req := c.http.R().SetContext(ctx).SetResult(&env).SetError(&env)
	if token := c.currentToken(); token != "" {
		req.SetAuthToken(token)
	}
	if len(r.params) > 0 {
		req.SetQueryParams(r.params)
	}
	if r.body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(r.body)
	}
	if r.key != "" {
		req.SetHeader(idempotencyHeader, r.key)
	}

	resp, err := req.Execute(r.method, r.path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrStoreUnavailable.Wrap(ctx.Err())
		}
		return nil, domain.ErrStoreUnavailable.Wrap(err)
	}

	if !env.Success {
		if e := domain.ErrorFromCode(env.Code, env.Message); e != nil {
			return nil, e
		}
		if env.Message == "" {
			env.Message = resp.Status()
		}
		return nil, domain.ErrStoreUnavailable.Wrap(fmt.Errorf("存储服务返回错误 %d: %s", resp.StatusCode(), env.Message))
	}

	return env.Data, nil
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}
