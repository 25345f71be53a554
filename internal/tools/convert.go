package tools

import (
	"fmt"
	"math/big"
	"strings"

	xerrors "ChainScope-MCP/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// unitExponents 定义各单位相对 wei 的十进制指数。
var unitExponents = map[string]int{
	"wei":   0,
	"gwei":  9,
	"ether": 18,
	"eth":   18,
}

// convertUnits 在 wei、gwei 与 ether 之间转换数值，纯本地计算。
func (d *Dispatcher) convertUnits(req Request) (*Result, error) {
	value := argString(req.Args, "value")
	if value == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 value 参数")
	}
	from := strings.ToLower(argString(req.Args, "from"))
	to := strings.ToLower(argString(req.Args, "to"))

	fromExp, ok := unitExponents[from]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的单位: %s", from))
	}
	toExp, ok := unitExponents[to]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的单位: %s", to))
	}

	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("无法解析数值: %s", value))
	}

	shift := fromExp - toExp
	if shift > 0 {
		rat.Mul(rat, new(big.Rat).SetInt(pow10(shift)))
	} else if shift < 0 {
		rat.Quo(rat, new(big.Rat).SetInt(pow10(-shift)))
	}

	converted := formatRat(rat)
	return &Result{
		Output: fmt.Sprintf("%s %s = %s %s", value, from, converted, to),
	}, nil
}

// convertDecimal 将十进制整数字符串右移 shift 位小数，用于 wei 到 gwei
// 这类固定换算。
func convertDecimal(value string, shift int) string {
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return value
	}
	rat.Quo(rat, new(big.Rat).SetInt(pow10(shift)))
	return formatRat(rat)
}

func pow10(exp int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// formatRat 输出不带尾随零的十进制表示，最多保留 18 位小数。
func formatRat(rat *big.Rat) string {
	if rat.IsInt() {
		return rat.Num().String()
	}
	formatted := rat.FloatString(18)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimRight(formatted, ".")
	return formatted
}

// decodeCalldata 解析 calldata 的函数选择器，提供 ABI 片段时进一步解码
// 参数。
func (d *Dispatcher) decodeCalldata(req Request) (*Result, error) {
	raw := argString(req.Args, "data")
	if raw == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 data 参数")
	}
	data := common.FromHex(raw)
	if len(data) < 4 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "calldata 长度不足 4 字节")
	}
	selector := data[:4]
	payload := data[4:]

	var b strings.Builder
	fmt.Fprintf(&b, "选择器: 0x%x\n", selector)

	if abiJSON := argString(req.Args, "abi"); abiJSON != "" {
		parsed, err := abi.JSON(strings.NewReader(abiJSON))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 ABI 失败")
		}
		method, err := parsed.MethodById(selector)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "选择器与 ABI 不匹配")
		}
		values, err := method.Inputs.Unpack(payload)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解码参数失败")
		}
		fmt.Fprintf(&b, "函数: %s\n", method.Sig)
		for i, input := range method.Inputs {
			name := input.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			fmt.Fprintf(&b, "  %s (%s): %v\n", name, input.Type.String(), values[i])
		}
	} else {
		fmt.Fprintf(&b, "参数字节数: %d\n", len(payload))
		for i := 0; i+32 <= len(payload); i += 32 {
			fmt.Fprintf(&b, "  字 %d: 0x%x\n", i/32, payload[i:i+32])
		}
	}

	return &Result{Output: b.String()}, nil
}
