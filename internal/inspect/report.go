package inspect

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"ChainScope-MCP/internal/verify"
)

// AccountKind 区分外部账户与合约账户，每次分析只判定一次。
type AccountKind string

const (
	KindExternallyOwned AccountKind = "externally_owned"
	KindContract        AccountKind = "contract"
)

// ValueUnavailable 是字段级降级的显式标记，让调用方能区分
// “查过但没有”与“没有查”。
const ValueUnavailable = "unavailable"

// Report 是一次地址分析的最终产物，组装完成后不再修改。
// Classification 仅对合约账户存在：外部账户从不携带分类，未知合约携带
// Matched=false 的分类。
type Report struct {
	Address           string          `json:"address"`
	Kind              AccountKind     `json:"kind"`
	Balance           string          `json:"balance"`
	BytecodeSizeBytes int             `json:"bytecode_size_bytes"`
	Classification    *Classification `json:"classification,omitempty"`
	Verification      *verify.Record  `json:"verification,omitempty"`
	ExplorerURL       string          `json:"explorer_url,omitempty"`
}

// weiPerEther 即 10^18，原生代币的定点小数精度。
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// FormatNativeBalance 将 wei 余额格式化为十进制原生单位，去掉无意义的
// 尾随零，例如 5*10^18 -> "5"，15*10^17 -> "1.5"。
func FormatNativeBalance(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(wei, weiPerEther, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%018s", rem.String()), "0")
	return quo.String() + "." + frac
}

// Render 生成面向人类的文本报告，供工具层直接返回给调用方。
func (r *Report) Render() string {
	if r == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "地址: %s\n", r.Address)

	switch r.Kind {
	case KindExternallyOwned:
		b.WriteString("类型: 外部账户 (EOA)\n")
	case KindContract:
		fmt.Fprintf(&b, "类型: 合约账户 (字节码 %d 字节)\n", r.BytecodeSizeBytes)
	}
	fmt.Fprintf(&b, "余额: %s\n", r.Balance)

	if r.Classification != nil {
		if r.Classification.Matched {
			fmt.Fprintf(&b, "分类: %s", r.Classification.Standard)
			if r.Classification.SelfDeclared {
				b.WriteString(" (ERC-165 自声明)")
			}
			b.WriteString("\n")
			for _, key := range sortedKeys(r.Classification.Fields) {
				fmt.Fprintf(&b, "  %s: %s\n", key, r.Classification.Fields[key])
			}
		} else {
			b.WriteString("分类: 未知合约类型\n")
		}
	}

	if r.Kind == KindContract {
		if r.Verification != nil {
			fmt.Fprintf(&b, "源码验证: 已验证 (%s, 编译器 %s", r.Verification.ContractName, r.Verification.CompilerVersion)
			if r.Verification.OptimizationEnabled {
				fmt.Fprintf(&b, ", 优化 %d runs", r.Verification.Runs)
			}
			b.WriteString(")\n")
		} else {
			b.WriteString("源码验证: 未验证\n")
			if r.ExplorerURL != "" {
				fmt.Fprintf(&b, "浏览器详情: %s/address/%s\n", r.ExplorerURL, r.Address)
			}
		}
	}
	return b.String()
}

// sortedKeys 保证渲染顺序确定，使相同输入得到逐字节一致的报告。
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
