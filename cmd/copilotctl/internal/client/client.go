// Package client 是 conversation-service 管理接口的 HTTP 客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError 服务端返回的错误
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// AccountStatus 账号可用性
type AccountStatus struct {
	Identity         string    `json:"identity"`
	Project          string    `json:"project,omitempty"`
	UnavailableUntil time.Time `json:"unavailable_until,omitempty"`
	Available        bool      `json:"available"`
}

type envelope struct {
	Code    int             `json:"code"`
	Reason  string          `json:"reason"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client 管理接口客户端
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New 创建客户端，httpClient 为空时使用带超时的默认客户端
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
	}
}

// ListAccounts 查询账号状态
func (c *Client) ListAccounts(ctx context.Context) ([]AccountStatus, error) {
	var out struct {
		Accounts []AccountStatus `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// InitAccounts 用给定账号替换账号池，返回账号数
func (c *Client) InitAccounts(ctx context.Context, accounts []Account) (int, error) {
	var out struct {
		Accounts int `json:"accounts"`
	}
	body := map[string]any{"accounts": accounts}
	if err := c.do(ctx, http.MethodPut, "/api/v1/accounts", body, &out); err != nil {
		return 0, err
	}
	return out.Accounts, nil
}

// MarkAccount 标记账号在 d 时间内不可用，d 为 0 时使用服务端默认冷却
func (c *Client) MarkAccount(ctx context.Context, identity string, d time.Duration) error {
	body := map[string]string{}
	if d > 0 {
		body["duration"] = d.String()
	}
	path := "/api/v1/accounts/" + url.PathEscape(identity) + "/mark"
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// Export 导出会话的记忆快照，原样返回 JSON
func (c *Client) Export(ctx context.Context, subject int64) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, subjectPath(subject, "export"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Import 导入记忆快照
func (c *Client) Import(ctx context.Context, subject int64, dump json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, subjectPath(subject, "import"), dump, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats 查询上下文统计
func (c *Client) Stats(ctx context.Context, subject int64) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, http.MethodGet, subjectPath(subject, "stats"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func subjectPath(subject int64, action string) string {
	return "/api/v1/subjects/" + strconv.FormatInt(subject, 10) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Status: resp.StatusCode, Reason: env.Reason, Message: env.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if rawOut, ok := out.(*json.RawMessage); ok {
		*rawOut = env.Data
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
