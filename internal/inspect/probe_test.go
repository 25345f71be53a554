package inspect

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func erc20Candidate(t *testing.T) Candidate {
	t.Helper()
	return DefaultCandidates()[0]
}

func erc721Candidate(t *testing.T) Candidate {
	t.Helper()
	candidate := DefaultCandidates()[1]
	if candidate.Name != "ERC-721" {
		t.Fatalf("unexpected candidate order: %s", candidate.Name)
	}
	return candidate
}

func TestProbeRequiredFailureRejectsCandidate(t *testing.T) {
	t.Parallel()

	chain := &stubChain{views: map[string]stubView{
		"totalSupply": {err: errors.New("execution reverted")},
		"balanceOf":   {values: []any{big.NewInt(0)}},
	}}
	prober := NewProber(chain, 0)

	result := prober.Probe(context.Background(), common.HexToAddress(testAddr), erc20Candidate(t))
	if result.Satisfied {
		t.Fatal("必要函数失败时候选不应命中")
	}
	if len(result.Outcomes) == 0 {
		t.Fatal("失败的探测也必须留下记录")
	}
	for _, outcome := range result.Outcomes {
		if outcome.Function == "totalSupply()" && outcome.Succeeded {
			t.Fatal("totalSupply 应记录为失败")
		}
	}
}

func TestProbeMetadataFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	chain := &stubChain{views: map[string]stubView{
		"totalSupply": {values: []any{big.NewInt(42)}},
		"balanceOf":   {values: []any{big.NewInt(0)}},
	}}
	prober := NewProber(chain, 0)

	result := prober.Probe(context.Background(), common.HexToAddress(testAddr), erc20Candidate(t))
	if !result.Satisfied {
		t.Fatalf("expected a match: %+v", result)
	}
	if result.Fields["name"] != "(unnamed)" {
		t.Fatalf("unexpected name %q", result.Fields["name"])
	}
	if result.Fields["symbol"] != "(unknown)" {
		t.Fatalf("unexpected symbol %q", result.Fields["symbol"])
	}
	if result.Fields["decimals"] != "18" {
		t.Fatalf("unexpected decimals %q", result.Fields["decimals"])
	}
	if result.Fields["totalSupply"] != "42" {
		t.Fatalf("unexpected totalSupply %q", result.Fields["totalSupply"])
	}
}

func TestProbeSelfDeclarationShortCircuits(t *testing.T) {
	t.Parallel()

	chain := &stubChain{views: map[string]stubView{
		"supportsInterface": {values: []any{true}},
		"name":              {values: []any{"Sample NFT"}},
		"symbol":            {values: []any{"SNFT"}},
	}}
	prober := NewProber(chain, 0)

	result := prober.Probe(context.Background(), common.HexToAddress(testAddr), erc721Candidate(t))
	if !result.Satisfied || !result.SelfDeclared {
		t.Fatalf("expected a self-declared match: %+v", result)
	}
	if chain.callCount("CallView:balanceOf") != 0 {
		t.Fatalf("自声明命中后不应再逐函数探测: %v", chain.calls)
	}
	if result.Fields["name"] != "Sample NFT" {
		t.Fatalf("unexpected name %q", result.Fields["name"])
	}
}

func TestProbeSelfDeclarationDenialIsAuthoritative(t *testing.T) {
	t.Parallel()

	// balanceOf 能成功，但合约明确声明不支持 ERC-721。
	chain := &stubChain{views: map[string]stubView{
		"supportsInterface": {values: []any{false}},
		"balanceOf":         {values: []any{big.NewInt(0)}},
	}}
	prober := NewProber(chain, 0)

	result := prober.Probe(context.Background(), common.HexToAddress(testAddr), erc721Candidate(t))
	if result.Satisfied {
		t.Fatalf("自声明否认应直接淘汰候选: %+v", result)
	}
	if chain.callCount("CallView:balanceOf") != 0 {
		t.Fatalf("否认之后不应继续探测: %v", chain.calls)
	}
}

func TestProbeFallsBackWhenDeclarationUnavailable(t *testing.T) {
	t.Parallel()

	// supportsInterface 本身不存在，退回逐函数探测路径。
	chain := &stubChain{views: map[string]stubView{
		"balanceOf": {values: []any{big.NewInt(0)}},
		"name":      {values: []any{"Sample NFT"}},
		"symbol":    {values: []any{"SNFT"}},
	}}
	prober := NewProber(chain, 0)

	result := prober.Probe(context.Background(), common.HexToAddress(testAddr), erc721Candidate(t))
	if !result.Satisfied {
		t.Fatalf("expected a match via required probing: %+v", result)
	}
	if result.SelfDeclared {
		t.Fatal("退回路径不应标记为自声明")
	}
}
