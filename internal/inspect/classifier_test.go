package inspect

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestClassifyPrefersEarlierCandidate(t *testing.T) {
	t.Parallel()

	// 该应答表同时满足 ERC-20 与 ERC-721 的必要函数集，
	// 结论必须是优先级更高的 ERC-20。
	views := erc20Views()
	views["supportsInterface"] = stubView{values: []any{true}}
	chain := &stubChain{views: views}

	classifier := NewClassifier(NewProber(chain, 0), nil)
	classification := classifier.Classify(context.Background(), common.HexToAddress(testAddr))
	if !classification.Matched {
		t.Fatalf("expected a match: %+v", classification)
	}
	if classification.Standard != "ERC-20" {
		t.Fatalf("unexpected standard %s", classification.Standard)
	}
}

func TestClassifyReportsSecondCandidate(t *testing.T) {
	t.Parallel()

	chain := &stubChain{views: map[string]stubView{
		"supportsInterface": {values: []any{true}},
		"balanceOf":         {values: []any{big.NewInt(0)}},
		"name":              {values: []any{"Sample NFT"}},
		"symbol":            {values: []any{"SNFT"}},
	}}

	classifier := NewClassifier(NewProber(chain, 0), nil)
	classification := classifier.Classify(context.Background(), common.HexToAddress(testAddr))
	if !classification.Matched || classification.Standard != "ERC-721" {
		t.Fatalf("unexpected classification: %+v", classification)
	}
	if !classification.SelfDeclared {
		t.Fatal("expected a self-declared match")
	}
}

func TestClassifyNoMatch(t *testing.T) {
	t.Parallel()

	chain := &stubChain{}
	classifier := NewClassifier(NewProber(chain, 0), nil)
	classification := classifier.Classify(context.Background(), common.HexToAddress(testAddr))
	if classification.Matched {
		t.Fatalf("expected no match: %+v", classification)
	}
}

func TestFormatNativeBalance(t *testing.T) {
	t.Parallel()

	cases := []struct {
		wei  *big.Int
		want string
	}{
		{nil, "0"},
		{big.NewInt(0), "0"},
		{new(big.Int).Mul(big.NewInt(5), oneEther), "5"},
		{big.NewInt(1_500_000_000_000_000_000), "1.5"},
		{big.NewInt(1), "0.000000000000000001"},
	}
	for _, tc := range cases {
		if got := FormatNativeBalance(tc.wei); got != tc.want {
			t.Fatalf("FormatNativeBalance(%v) = %q, want %q", tc.wei, got, tc.want)
		}
	}
}
