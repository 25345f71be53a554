package inspect

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ChainCaller 是探测器所需的最小链上调用能力。
type ChainCaller interface {
	CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error)
}

// ProbeOutcome 记录单个函数的推测调用结果。单个函数失败只会降低候选
// 的可信度，绝不会以异常形式越过探测边界。
type ProbeOutcome struct {
	Function  string `json:"function"`
	Succeeded bool   `json:"succeeded"`
	Value     string `json:"value,omitempty"`
}

// CandidateResult 汇总一个候选接口的探测结论。
type CandidateResult struct {
	Candidate    string         `json:"candidate"`
	Satisfied    bool           `json:"satisfied"`
	SelfDeclared bool           `json:"self_declared,omitempty"`
	Outcomes     []ProbeOutcome `json:"outcomes,omitempty"`
	Fields       map[string]string
}

// Prober 对单个地址执行候选接口的逐函数推测调用。
type Prober struct {
	chain   ChainCaller
	timeout time.Duration
}

// NewProber 创建探测器。timeout 限定每次链上子调用的时长，0 表示不限制。
func NewProber(chain ChainCaller, timeout time.Duration) *Prober {
	return &Prober{chain: chain, timeout: timeout}
}

// Probe 探测单个候选接口。Required 函数逐个调用并记录成功与否，全部
// 成功才算命中；候选携带 ERC-165 接口号时，自声明结果是权威证据，直接
// 决定是否命中并跳过逐函数探测（自声明函数本身不存在时退回逐函数路径）。
// 命中后再尽力采集 Sufficient 元数据，失败降级为各自的默认值。
func (p *Prober) Probe(ctx context.Context, contract common.Address, candidate Candidate) CandidateResult {
	result := CandidateResult{
		Candidate: candidate.Name,
		Fields:    make(map[string]string),
	}

	declared, declarationKnown := p.checkSelfDeclaration(ctx, contract, candidate, &result)
	switch {
	case declarationKnown && declared:
		result.Satisfied = true
		result.SelfDeclared = true
	case declarationKnown && !declared:
		return result
	default:
		result.Satisfied = p.probeRequired(ctx, contract, candidate, &result)
	}

	if !result.Satisfied {
		return result
	}

	for _, call := range candidate.Sufficient {
		value, err := p.call(ctx, contract, candidate.ABI, call)
		outcome := ProbeOutcome{Function: call.Signature, Succeeded: err == nil}
		if err == nil {
			outcome.Value = value
		} else if call.Default != "" {
			value = call.Default
		}
		result.Outcomes = append(result.Outcomes, outcome)
		if call.Field != "" && value != "" {
			result.Fields[call.Field] = value
		}
	}
	return result
}

// checkSelfDeclaration 调用 ERC-165 supportsInterface。第二个返回值表示
// 声明是否可用：函数缺失或调用失败时为 false，此时不构成任何证据。
func (p *Prober) checkSelfDeclaration(ctx context.Context, contract common.Address, candidate Candidate, result *CandidateResult) (bool, bool) {
	if candidate.InterfaceID == ([4]byte{}) {
		return false, false
	}

	values, err := p.callRaw(ctx, contract, candidate.ABI, "supportsInterface", candidate.InterfaceID)
	if err != nil {
		return false, false
	}
	supported, ok := firstBool(values)
	if !ok {
		return false, false
	}
	result.Outcomes = append(result.Outcomes, ProbeOutcome{
		Function:  "supportsInterface(bytes4)",
		Succeeded: true,
		Value:     fmt.Sprintf("%t", supported),
	})
	return supported, true
}

func (p *Prober) probeRequired(ctx context.Context, contract common.Address, candidate Candidate, result *CandidateResult) bool {
	satisfied := true
	for _, call := range candidate.Required {
		value, err := p.call(ctx, contract, candidate.ABI, call)
		outcome := ProbeOutcome{Function: call.Signature, Succeeded: err == nil}
		if err == nil {
			outcome.Value = value
			if call.Field != "" {
				result.Fields[call.Field] = value
			}
		} else {
			satisfied = false
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return satisfied
}

// call 执行单个函数并把首个输出格式化为字符串。
func (p *Prober) call(ctx context.Context, contract common.Address, abiJSON string, fn FunctionCall) (string, error) {
	values, err := p.callRaw(ctx, contract, abiJSON, fn.Method, fn.Args...)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", fmt.Errorf("函数 %s 没有输出", fn.Signature)
	}
	return formatValue(values[0]), nil
}

func (p *Prober) callRaw(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error) {
	if p.chain == nil {
		return nil, fmt.Errorf("未配置链上调用客户端")
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.chain.CallView(ctx, contract, abiJSON, method, args...)
}

// formatValue 将 ABI 解码值转成确定性的字符串表示，保证同一链上状态
// 下重复分析得到逐字节一致的报告。
func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case *big.Int:
		if v == nil {
			return "0"
		}
		return v.String()
	case bool:
		return fmt.Sprintf("%t", v)
	case uint8:
		return fmt.Sprintf("%d", v)
	case common.Address:
		return v.Hex()
	case []byte:
		return common.Bytes2Hex(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstBool(values []any) (bool, bool) {
	if len(values) == 0 {
		return false, false
	}
	b, ok := values[0].(bool)
	return b, ok
}
