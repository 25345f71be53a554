package inspect

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"sync"
	"testing"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/verify"

	"github.com/ethereum/go-ethereum/common"
)

const (
	testAddr      = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	testAddrLower = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
)

// oneEther 即 10^18 wei。
var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type stubView struct {
	values []any
	err    error
}

// stubChain 模拟链上读取客户端并记录所有调用，供测试断言调用次数。
type stubChain struct {
	mu         sync.Mutex
	code       []byte
	codeErr    error
	balance    *big.Int
	balanceErr error
	views      map[string]stubView
	calls      []string
}

func (s *stubChain) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *stubChain) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	s.record("CodeAt")
	return s.code, s.codeErr
}

func (s *stubChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	s.record("BalanceAt")
	return s.balance, s.balanceErr
}

func (s *stubChain) CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error) {
	s.record("CallView:" + method)
	view, ok := s.views[method]
	if !ok {
		return nil, fmt.Errorf("合约执行回滚: %s", method)
	}
	return view.values, view.err
}

func (s *stubChain) callCount(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if strings.HasPrefix(call, prefix) {
			count++
		}
	}
	return count
}

// erc20Views 返回一个行为良好的 ERC-20 代币的视图函数应答表。
func erc20Views() map[string]stubView {
	return map[string]stubView{
		"totalSupply": {values: []any{big.NewInt(1_000_000)}},
		"balanceOf":   {values: []any{big.NewInt(0)}},
		"name":        {values: []any{"Sample Token"}},
		"symbol":      {values: []any{"SMPL"}},
		"decimals":    {values: []any{uint8(6)}},
	}
}

type stubRegistry struct {
	mu     sync.Mutex
	record *verify.Record
	err    error
	calls  int
}

func (s *stubRegistry) Lookup(ctx context.Context, address string) (*verify.Record, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.record, s.err
}

func TestAnalyzeInvalidAddressMakesNoCalls(t *testing.T) {
	t.Parallel()

	chain := &stubChain{}
	ins := New(chain)

	_, err := ins.Analyze(context.Background(), "not-an-address")
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidAddress {
		t.Fatalf("unexpected code %s", code)
	}
	if len(chain.calls) != 0 {
		t.Fatalf("expected no chain calls, got %v", chain.calls)
	}
}

func TestAnalyzeExternallyOwnedAccount(t *testing.T) {
	t.Parallel()

	chain := &stubChain{balance: new(big.Int).Mul(big.NewInt(5), oneEther)}
	registry := &stubRegistry{}
	ins := New(chain, WithRegistry(registry))

	report, err := ins.Analyze(context.Background(), testAddrLower)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Kind != KindExternallyOwned {
		t.Fatalf("unexpected kind %s", report.Kind)
	}
	if report.Address != testAddr {
		t.Fatalf("unexpected address %s", report.Address)
	}
	if report.Balance != "5" {
		t.Fatalf("unexpected balance %s", report.Balance)
	}
	if report.Classification != nil {
		t.Fatalf("外部账户不应携带分类: %+v", report.Classification)
	}
	if chain.callCount("CallView") != 0 {
		t.Fatalf("外部账户不应触发视图探测: %v", chain.calls)
	}
	if registry.calls != 0 {
		t.Fatal("外部账户不应触发注册表查询")
	}
}

func TestAnalyzeERC20Contract(t *testing.T) {
	t.Parallel()

	chain := &stubChain{
		code:    []byte{0x60, 0x01, 0x60, 0x01, 0x01},
		balance: big.NewInt(1_500_000_000_000_000_000),
		views:   erc20Views(),
	}
	registry := &stubRegistry{record: &verify.Record{
		SourceAvailable: true,
		ContractName:    "SampleToken",
		CompilerVersion: "v0.8.24+commit.e11b9ed9",
	}}
	ins := New(chain, WithRegistry(registry))

	report, err := ins.Analyze(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Kind != KindContract || report.BytecodeSizeBytes != 5 {
		t.Fatalf("unexpected account kind: %+v", report)
	}
	if report.Balance != "1.5" {
		t.Fatalf("unexpected balance %s", report.Balance)
	}
	if report.Classification == nil || !report.Classification.Matched {
		t.Fatalf("expected a matched classification: %+v", report.Classification)
	}
	if report.Classification.Standard != "ERC-20" {
		t.Fatalf("unexpected standard %s", report.Classification.Standard)
	}
	want := map[string]string{
		"totalSupply": "1000000",
		"name":        "Sample Token",
		"symbol":      "SMPL",
		"decimals":    "6",
	}
	if !reflect.DeepEqual(report.Classification.Fields, want) {
		t.Fatalf("unexpected fields: %v", report.Classification.Fields)
	}
	if report.Verification == nil || report.Verification.ContractName != "SampleToken" {
		t.Fatalf("unexpected verification: %+v", report.Verification)
	}
}

func TestAnalyzeUnknownContract(t *testing.T) {
	t.Parallel()

	chain := &stubChain{
		code:    []byte{0x60, 0x01},
		balance: big.NewInt(0),
	}
	ins := New(chain)

	report, err := ins.Analyze(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.Classification == nil {
		t.Fatal("合约账户必须携带分类结论")
	}
	if report.Classification.Matched {
		t.Fatalf("expected no match: %+v", report.Classification)
	}
	if report.Classification.Standard != "" || len(report.Classification.Fields) != 0 {
		t.Fatalf("未命中的分类不应携带残留字段: %+v", report.Classification)
	}
}

func TestAnalyzeCodeFailureIsFatal(t *testing.T) {
	t.Parallel()

	chain := &stubChain{codeErr: errors.New("connection refused")}
	ins := New(chain)

	_, err := ins.Analyze(context.Background(), testAddr)
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeChainUnavailable {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAnalyzeBalanceFailureIsFatal(t *testing.T) {
	t.Parallel()

	chain := &stubChain{
		code:       []byte{0x60, 0x01},
		balanceErr: errors.New("connection reset"),
		views:      erc20Views(),
	}
	ins := New(chain)

	_, err := ins.Analyze(context.Background(), testAddr)
	if err == nil {
		t.Fatal("expected an error")
	}
	if code := xerrors.CodeOf(err); code != xerrors.CodeChainUnavailable {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestAnalyzeRegistryFailureDegrades(t *testing.T) {
	t.Parallel()

	chain := &stubChain{
		code:    []byte{0x60, 0x01},
		balance: big.NewInt(0),
		views:   erc20Views(),
	}
	registry := &stubRegistry{err: errors.New("registry down")}
	ins := New(chain, WithRegistry(registry))

	report, err := ins.Analyze(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("注册表故障不应使分析失败: %v", err)
	}
	if report.Verification != nil {
		t.Fatalf("expected degraded verification, got %+v", report.Verification)
	}
	if report.Classification == nil || !report.Classification.Matched {
		t.Fatalf("分类不应受注册表故障影响: %+v", report.Classification)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()

	chain := &stubChain{
		code:    []byte{0x60, 0x01},
		balance: new(big.Int).Mul(big.NewInt(3), oneEther),
		views:   erc20Views(),
	}
	ins := New(chain, WithExplorerURL("https://example.invalid"))

	first, err := ins.Analyze(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	second, err := ins.Analyze(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reports differ:\n%+v\n%+v", first, second)
	}
	if first.Render() != second.Render() {
		t.Fatal("rendered reports differ")
	}
}
