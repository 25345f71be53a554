package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义文档检索的通用接口，lookup_docs 工具通过它回答
// 链上概念类的查询。
type Provider interface {
	Query(query, topic string) []Snippet
}

// Snippet 描述一段可供检索的文档。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 通过加载 JSON 文件提供静态文档检索能力。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态文档库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// LoadStaticProvider 从 JSON 文件加载文档条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("文档库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析文档库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取文档库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析文档库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// DefaultSnippets 返回内置的基础文档，未配置外部文档库时使用。
func DefaultSnippets() []Snippet {
	return []Snippet{
		{
			Title:    "ERC-20",
			Content:  "同质化代币标准，必须实现 totalSupply、balanceOf、transfer、approve 等函数。name、symbol 与 decimals 为可选的元数据函数。",
			Keywords: []string{"erc20", "erc-20", "token", "代币"},
			Tags:     []string{"standard"},
		},
		{
			Title:    "ERC-721",
			Content:  "非同质化代币标准，通过 ERC-165 注册接口号 0x80ac58cd。balanceOf 返回某账户持有的 NFT 数量。",
			Keywords: []string{"erc721", "erc-721", "nft"},
			Tags:     []string{"standard"},
		},
		{
			Title:    "ERC-165",
			Content:  "接口自声明标准。supportsInterface(bytes4) 返回合约是否声明支持某接口，是分类时的权威证据。",
			Keywords: []string{"erc165", "erc-165", "supportsinterface"},
			Tags:     []string{"standard"},
		},
		{
			Title:    "EIP-55",
			Content:  "地址校验和编码。大小写混合的十六进制地址携带校验和，校验失败通常意味着抄写错误。",
			Keywords: []string{"eip55", "eip-55", "checksum", "校验和", "address", "地址"},
			Tags:     []string{"encoding"},
		},
		{
			Title:    "Gas",
			Content:  "交易执行的计量单位。gas price 以 wei 计价，1 gwei = 10^9 wei，1 ether = 10^18 wei。",
			Keywords: []string{"gas", "gwei", "wei", "fee"},
			Tags:     []string{"concept"},
		},
		{
			Title:    "EOA 与合约账户",
			Content:  "getCode 返回空字节串的地址是外部账户（EOA），否则是合约账户。EOA 永远不会响应任何合约函数调用。",
			Keywords: []string{"eoa", "account", "账户", "合约"},
			Tags:     []string{"concept"},
		},
	}
}

// Query 根据查询词与主题进行关键词匹配。
func (p *StaticProvider) Query(query, topic string) []Snippet {
	if p == nil {
		return nil
	}

	query = strings.ToLower(strings.TrimSpace(query))
	topic = strings.ToLower(strings.TrimSpace(topic))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, query, topic) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(snippet Snippet, query, topic string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) || strings.Contains(topic, normalized) {
			return true
		}
	}
	if len(snippet.Tags) == 0 {
		return false
	}
	for _, tag := range snippet.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) || strings.Contains(topic, normalized) {
			return true
		}
	}
	return false
}

var _ Provider = (*StaticProvider)(nil)
