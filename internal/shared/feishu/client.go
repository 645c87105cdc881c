package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const openAPIHost = "https://open.feishu.cn"

// 令牌失效的错误码，清缓存后重试一次
const (
	codeTokenInvalid = 99991663
	codeTokenExpired = 99991668
)

// APIError 飞书接口返回的非零错误码
type APIError struct {
	Code int
	Msg  string
	Path string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("飞书API错误[%d]: %s (path=%s)", e.Code, e.Msg, e.Path)
}

func (e *APIError) tokenRejected() bool {
	return e.Code == codeTokenInvalid || e.Code == codeTokenExpired
}

// Client 告警机器人客户端，只用到 app_access_token 和发消息
type Client struct {
	appID     string
	appSecret string
	host      string
	http      *http.Client

	mu       sync.Mutex
	token    string
	deadline time.Time
}

func NewClient(appID, appSecret string) *Client {
	return NewClientWithBaseURL(appID, appSecret, openAPIHost)
}

// NewClientWithBaseURL 私有化部署或测试时指定地址
func NewClientWithBaseURL(appID, appSecret, baseURL string) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		host:      baseURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// accessToken 返回缓存的令牌，过期前一分钟换新
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.deadline) {
		return c.token, nil
	}

	var out struct {
		AppAccessToken string `json:"app_access_token"`
		Expire         int    `json:"expire"`
	}
	creds := map[string]string{"app_id": c.appID, "app_secret": c.appSecret}
	if err := c.call(ctx, "/open-apis/auth/v3/app_access_token/internal", "", creds, &out); err != nil {
		return "", fmt.Errorf("获取飞书令牌失败: %w", err)
	}
	c.token = out.AppAccessToken
	c.deadline = time.Now().Add(time.Duration(out.Expire-60) * time.Second)
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// post 带令牌调用接口，令牌被拒时刷新后重发一次
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	for attempt := 0; ; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}
		err = c.call(ctx, path, token, body, out)
		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.tokenRejected() {
			c.dropToken()
			continue
		}
		return err
	}
}

// call 发送 JSON POST，统一检查 code 字段
func (c *Client) call(ctx context.Context, path, token string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("请求飞书失败: %w", err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return fmt.Errorf("解析响应失败 (status=%d): %w", resp.StatusCode, err)
	}
	var head struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("解析响应失败: %w", err)
	}
	if head.Code != 0 {
		return &APIError{Code: head.Code, Msg: head.Msg, Path: path}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
