// Package bot 封装对内部机器人服务的 HTTP 调用。
// 机器人负责跨平台通知和部分非资金类核销效果（礼物发货、靓号改名等），
// 调用是同步阻塞的，由机器人侧的应答决定业务成败。
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/yayaxhy/jinleeWeb/internal/config"
)

// 调用失败的两类错误：
// ErrUpstream 机器人明确拒绝（带业务消息，可透传给用户）；
// ErrGatewayUnavailable 网络/超时，机器人状态未知
var (
	ErrUpstream           = errors.New("内部接口错误")
	ErrGatewayUnavailable = errors.New("内部接口不可达")
)

// 内部接口路径
const (
	PathGift             = "/internal/gift"
	PathRenameCard       = "/internal/rename-card"
	PathCustomGift       = "/internal/voucher/custom-gift"
	PathCustomTag        = "/internal/voucher/custom-tag"
	PathCommissionMinus1 = "/internal/voucher/commission-minus1"
	PathDoubleFlow5000   = "/internal/voucher/double-flow-5000"
	PathDoubleSpend5000  = "/internal/voucher/double-spend-5000"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg *config.InternalConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, cfg.Port),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientForBase 直接指定地址，测试用
func NewClientForBase(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Post 调用内部接口
// 非 2xx 时优先取应答体里的 error 字段作为业务消息
func (c *Client) Post(ctx context.Context, path string, payload map[string]interface{}) error {
	if c.token == "" {
		return fmt.Errorf("%w: INTERNAL_API_TOKEN 未配置", ErrUpstream)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var data struct {
		Error string `json:"error"`
	}
	if decodeErr := json.NewDecoder(resp.Body).Decode(&data); decodeErr == nil && data.Error != "" {
		return fmt.Errorf("%w: %s", ErrUpstream, data.Error)
	}
	return fmt.Errorf("%w (%d)", ErrUpstream, resp.StatusCode)
}
