package inspect

import "github.com/ethereum/go-ethereum/common"

// probeAccount 是探测 balanceOf 这类带账户参数的函数时使用的零地址。
var probeAccount = common.Address{}

// 占位值：元数据函数探测失败时写入报告的默认内容。
const (
	placeholderName   = "(unnamed)"
	placeholderSymbol = "(unknown)"
	defaultDecimals   = "18"
)

const erc20ABI = `[
  {"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const erc721ABI = `[
  {"inputs":[{"name":"interfaceId","type":"bytes4"}],"name":"supportsInterface","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// FunctionCall 描述候选接口中的一个只读函数探测。
type FunctionCall struct {
	Method    string // ABI 片段中的方法名
	Signature string // 人类可读的函数签名，用于探测记录
	Args      []any  // 静态调用参数
	Field     string // 成功时写入报告的字段名，空表示不提取
	Default   string // 元数据函数失败时的降级值，空表示无降级
}

// Candidate 描述一个待探测的代币标准。Required 全部成功才算命中；
// Sufficient 仅在命中后尽力采集，失败降级为 Default。
type Candidate struct {
	Name string
	ABI  string
	// InterfaceID 是 ERC-165 自声明接口号。非零时探测器优先调用
	// supportsInterface，其结果作为权威证据短路该候选的逐函数探测。
	InterfaceID [4]byte
	Required    []FunctionCall
	Sufficient  []FunctionCall
}

// erc721InterfaceID 是 ERC-721 标准在 ERC-165 中注册的接口号 0x80ac58cd。
var erc721InterfaceID = [4]byte{0x80, 0xac, 0x58, 0xcd}

// DefaultCandidates 返回固定优先级的候选接口列表。顺序即优先级：
// 同时满足多个候选时报告排在前面的那个，链上同质化代币远多于非同质
// 化代币，因此 ERC-20 排在最前。新增标准只需要在这里追加条目。
func DefaultCandidates() []Candidate {
	return []Candidate{
		{
			Name: "ERC-20",
			ABI:  erc20ABI,
			Required: []FunctionCall{
				{Method: "totalSupply", Signature: "totalSupply()", Field: "totalSupply"},
				{Method: "balanceOf", Signature: "balanceOf(address)", Args: []any{probeAccount}},
			},
			Sufficient: []FunctionCall{
				{Method: "name", Signature: "name()", Field: "name", Default: placeholderName},
				{Method: "symbol", Signature: "symbol()", Field: "symbol", Default: placeholderSymbol},
				{Method: "decimals", Signature: "decimals()", Field: "decimals", Default: defaultDecimals},
			},
		},
		{
			Name:        "ERC-721",
			ABI:         erc721ABI,
			InterfaceID: erc721InterfaceID,
			Required: []FunctionCall{
				{Method: "balanceOf", Signature: "balanceOf(address)", Args: []any{probeAccount}},
			},
			Sufficient: []FunctionCall{
				{Method: "name", Signature: "name()", Field: "name", Default: placeholderName},
				{Method: "symbol", Signature: "symbol()", Field: "symbol", Default: placeholderSymbol},
			},
		},
	}
}
