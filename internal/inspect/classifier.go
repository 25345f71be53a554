package inspect

import (
	"context"
	"log/slog"

	"ChainScope-MCP/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// Classification 是分类器的最终结论。Matched 为 false 表示所有候选的
// 必要函数集都未满足，此时 Standard 为空、Fields 为空。
type Classification struct {
	Matched      bool              `json:"matched"`
	Standard     string            `json:"standard,omitempty"`
	SelfDeclared bool              `json:"self_declared,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// Classifier 按固定优先级探测候选接口并返回首个命中的分类。
type Classifier struct {
	prober     *Prober
	candidates []Candidate
}

// NewClassifier 创建分类器。candidates 为空时使用默认候选表。
func NewClassifier(prober *Prober, candidates []Candidate) *Classifier {
	if len(candidates) == 0 {
		candidates = DefaultCandidates()
	}
	return &Classifier{prober: prober, candidates: candidates}
}

// Classify 依次探测候选接口，返回第一个命中的候选及其元数据。
// 一个地址同时满足多个候选时只报告优先级更高的那个，这是有意的近似
// 而非缺陷：排序本身就编码了判定偏好。
func (c *Classifier) Classify(ctx context.Context, contract common.Address) Classification {
	for _, candidate := range c.candidates {
		result := c.prober.Probe(ctx, contract, candidate)
		if !result.Satisfied {
			continue
		}
		logger.L().Debug("合约分类命中",
			slog.String("address", contract.Hex()),
			slog.String("standard", candidate.Name),
			slog.Bool("self_declared", result.SelfDeclared),
		)
		return Classification{
			Matched:      true,
			Standard:     candidate.Name,
			SelfDeclared: result.SelfDeclared,
			Fields:       result.Fields,
		}
	}
	return Classification{Matched: false}
}
