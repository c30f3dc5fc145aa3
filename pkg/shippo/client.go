// Package shippo Shippo 费率 API 客户端
//
// 只覆盖报价链路需要的接口：创建 shipment、查询费率、连通性测试、地址校验、承运商账户。
// 出站 JSON 中所有数字统一保留 4 位小数，服务商拒绝更高精度。
package shippo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"oip/liverates/pkg/errorutil"
	"oip/liverates/pkg/logger"
)

const (
	DefaultBaseURL = "https://api.goshippo.com/"
	DefaultTimeout = 30 * time.Second

	// numericPrecision 出站数字精度
	numericPrecision = 4
	// bodyPreviewLimit 调试日志中响应体的最大长度
	bodyPreviewLimit = 500
	maxResponseBytes = 8 << 20
)

// Options 客户端参数
type Options struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Debug      bool
	Logger     logger.Logger
	HTTPClient *http.Client
}

// Client Shippo API 客户端
type Client struct {
	apiKey     string
	baseURL    string
	timeout    time.Duration
	debug      bool
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient 创建客户端
func NewClient(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	timeout := opts.Timeout
	if timeout <= 0 || timeout > DefaultTimeout {
		timeout = DefaultTimeout
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		timeout:    timeout,
		debug:      opts.Debug,
		httpClient: httpClient,
		logger:     logger.Gated(opts.Logger, opts.Debug),
	}
}

// endpointURL 补全 v1/ 前缀（user 接口除外）
func (c *Client) endpointURL(endpoint string) string {
	endpoint = strings.TrimLeft(endpoint, "/")
	if !strings.HasPrefix(endpoint, "v1/") && !strings.HasPrefix(endpoint, "user") {
		endpoint = "v1/" + endpoint
	}
	return c.baseURL + endpoint
}

// request 发送请求并返回 2xx 响应体
// 失败分三类：传输错误、服务商错误、响应格式错误
func (c *Client) request(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	url := c.endpointURL(endpoint)

	var body io.Reader
	if payload != nil && (method == http.MethodPost || method == http.MethodPut) {
		encoded, err := encodeRounded(payload, numericPrecision)
		if err != nil {
			return nil, errorutil.Wrap(fmt.Errorf("encode %s payload: %w", endpoint, err))
		}
		c.logger.Debugf(ctx, "[Shippo] request body: %s", preview(encoded))
		body = bytes.NewReader(encoded)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, errorutil.Wrap(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debugf(ctx, "[Shippo] making %s request to %s", method, url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Errorf(ctx, "[Shippo] transport error calling %s %s: %v", method, url, err)
		return nil, errorutil.Transport(fmt.Sprintf("%s %s", method, endpoint), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Errorf(ctx, "[Shippo] transport error reading %s response: %v", endpoint, err)
		return nil, errorutil.Transport(fmt.Sprintf("read %s response", endpoint), err)
	}

	c.logger.Debugf(ctx, "[Shippo] API response code: %d", resp.StatusCode)
	c.logger.Debugf(ctx, "[Shippo] API response body preview: %s", preview(respBody))

	if resp.StatusCode >= http.StatusBadRequest {
		detail := errorDetail(respBody)
		c.logger.Errorf(ctx, "[Shippo] provider error (%d) on %s: %s", resp.StatusCode, endpoint, detail)
		return nil, errorutil.Provider(resp.StatusCode, fmt.Sprintf("shippo %s returned %d", endpoint, resp.StatusCode), detail)
	}

	if !json.Valid(respBody) {
		c.logger.Errorf(ctx, "[Shippo] malformed response from %s: %s", endpoint, preview(respBody))
		return nil, errorutil.Malformed(fmt.Sprintf("shippo %s returned non-JSON body", endpoint), nil)
	}

	if detail, ok := embeddedError(respBody); ok {
		c.logger.Errorf(ctx, "[Shippo] provider error payload on %s: %s", endpoint, detail)
		return nil, errorutil.Provider(resp.StatusCode, fmt.Sprintf("shippo %s reported an error", endpoint), detail)
	}

	return respBody, nil
}

// decode 解析 2xx 响应体
func decode(endpoint string, body []byte, out interface{}) error {
	if err := json.Unmarshal(body, out); err != nil {
		return errorutil.Malformed(fmt.Sprintf("decode %s response", endpoint), err)
	}
	return nil
}

// encodeRounded 序列化 payload，所有数字保留 precision 位小数
func encodeRounded(payload interface{}, precision int) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	rounded, err := roundNumbers(generic, precision)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rounded)
}

func roundNumbers(v interface{}, precision int) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			r, err := roundNumbers(item, precision)
			if err != nil {
				return nil, err
			}
			val[k] = r
		}
		return val, nil
	case []interface{}:
		for i, item := range val {
			r, err := roundNumbers(item, precision)
			if err != nil {
				return nil, err
			}
			val[i] = r
		}
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, err
		}
		return json.Number(strconv.FormatFloat(roundTo(f, precision), 'f', -1, 64)), nil
	default:
		return v, nil
	}
}

func roundTo(f float64, precision int) float64 {
	s := strconv.FormatFloat(f, 'f', precision, 64)
	r, _ := strconv.ParseFloat(s, 64)
	return r
}

// errorBody 服务商错误结构（两种形态都可能出现）
type errorBody struct {
	Detail string `json:"detail"`
	Error  *struct {
		Detail string `json:"detail"`
	} `json:"error"`
}

func errorDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Error != nil && eb.Error.Detail != "" {
			return eb.Error.Detail
		}
		if eb.Detail != "" {
			return eb.Detail
		}
	}
	if len(body) == 0 {
		return "Unknown error"
	}
	return preview(body)
}

// embeddedError 2xx 响应中携带的 {"error": {...}}
func embeddedError(body []byte) (string, bool) {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return "", false
	}
	if len(probe.Error) == 0 || string(probe.Error) == "null" {
		return "", false
	}
	return errorDetail(body), true
}

func preview(body []byte) string {
	if len(body) <= bodyPreviewLimit {
		return string(body)
	}
	return string(body[:bodyPreviewLimit]) + "..."
}
