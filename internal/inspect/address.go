package inspect

import (
	"strings"

	xerrors "ChainScope-MCP/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress 校验地址字符串并返回规范化地址。校验失败返回
// INVALID_ADDRESS，调用方必须在发起任何网络请求之前完成该检查。
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidAddress, "地址格式不合法",
			xerrors.WithMetadata("address", raw))
	}

	addr := common.HexToAddress(trimmed)

	// 大小写混合的地址携带 EIP-55 校验和，必须逐字符匹配规范形式；
	// 全小写或全大写地址视为未携带校验和。
	hexPart := trimmed
	if strings.HasPrefix(hexPart, "0x") || strings.HasPrefix(hexPart, "0X") {
		hexPart = hexPart[2:]
	}
	if hasMixedCase(hexPart) && "0x"+hexPart != addr.Hex() {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidAddress, "地址校验和不匹配",
			xerrors.WithMetadata("address", raw))
	}
	return addr, nil
}

func hasMixedCase(s string) bool {
	hasUpper := strings.ContainsFunc(s, func(r rune) bool { return r >= 'A' && r <= 'F' })
	hasLower := strings.ContainsFunc(s, func(r rune) bool { return r >= 'a' && r <= 'f' })
	return hasUpper && hasLower
}
