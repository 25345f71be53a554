package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.etherscan.io/api"
	defaultTimeout = 10 * time.Second
)

// Record 描述注册表返回的一条合约源码验证记录。仅当注册表成功响应且
// 源码字段非空时才会产生 Record；其余情况一律视为“未验证”。
type Record struct {
	SourceAvailable     bool   `json:"source_available"`
	ContractName        string `json:"contract_name"`
	CompilerVersion     string `json:"compiler_version"`
	OptimizationEnabled bool   `json:"optimization_enabled"`
	Runs                int    `json:"runs"`
}

// Config 描述访问 Etherscan 兼容验证注册表所需的信息。
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client 通过 HTTP 查询第三方合约验证注册表。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 根据配置创建注册表客户端。
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiResponse 是 Etherscan 风格接口的外层响应结构。出错时 result 可能是
// 字符串而非数组，因此先保留原始字节。
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type sourceEntry struct {
	SourceCode       string `json:"SourceCode"`
	ContractName     string `json:"ContractName"`
	CompilerVersion  string `json:"CompilerVersion"`
	OptimizationUsed string `json:"OptimizationUsed"`
	Runs             string `json:"Runs"`
}

// Lookup 查询指定地址的验证记录。验证数据是建议性的：任何传输失败、
// 非成功状态或空的源码字段都返回 nil 记录，error 仅供调用方记录日志。
func (c *Client) Lookup(ctx context.Context, address string) (*Record, error) {
	if c == nil {
		return nil, errors.New("注册表客户端未初始化")
	}

	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "getsourcecode")
	query.Set("address", address)
	if c.apiKey != "" {
		query.Set("apikey", c.apiKey)
	}

	endpoint := c.baseURL + "?" + query.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("构建注册表请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求验证注册表失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("注册表返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析注册表响应失败: %w", err)
	}
	if decoded.Status != "1" {
		// 未验证或接口侧错误，统一按“无记录”处理。
		return nil, nil
	}

	var entries []sourceEntry
	if err := json.Unmarshal(decoded.Result, &entries); err != nil {
		return nil, fmt.Errorf("解析注册表结果失败: %w", err)
	}
	// 成功状态但结果为空列表：按无记录处理，不猜测字段。
	if len(entries) == 0 {
		return nil, nil
	}

	entry := entries[0]
	if strings.TrimSpace(entry.SourceCode) == "" {
		return nil, nil
	}

	record := &Record{
		SourceAvailable:     true,
		ContractName:        entry.ContractName,
		CompilerVersion:     entry.CompilerVersion,
		OptimizationEnabled: entry.OptimizationUsed == "1",
	}
	if runs, err := strconv.Atoi(strings.TrimSpace(entry.Runs)); err == nil {
		record.Runs = runs
	}
	return record, nil
}
