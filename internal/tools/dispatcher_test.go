package tools

import (
	"context"
	"math/big"
	"strings"
	"testing"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/knowledge"
	"ChainScope-MCP/internal/storage/mysql"
	"ChainScope-MCP/internal/web3"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

const testAccount = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

// fakeClient 实现 web3.Client,所有返回值可按用例配置。
type fakeClient struct {
	snapshot    web3.ChainSnapshot
	snapshotErr error
	code        []byte
	codeErr     error
	balance     *big.Int
	balanceErr  error
	gasPrice    *big.Int
	gasPriceErr error
	nonce       uint64
	tx          *coretypes.Transaction
	txPending   bool
	txErr       error
	block       *coretypes.Block
	blockErr    error
}

func (f *fakeClient) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	return f.snapshot, f.snapshotErr
}

func (f *fakeClient) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return f.code, f.codeErr
}

func (f *fakeClient) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if f.balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeClient) CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error) {
	return nil, xerrors.New(xerrors.CodeChainUnavailable, "未配置 view 调用")
}

func (f *fakeClient) TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error) {
	return f.tx, f.txPending, f.txErr
}

func (f *fakeClient) BlockByNumber(ctx context.Context, number *big.Int) (*coretypes.Block, error) {
	return f.block, f.blockErr
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasPriceErr != nil {
		return nil, f.gasPriceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) Close() {}

var _ web3.Client = (*fakeClient)(nil)

// fakeResolver 用固定的客户端表实现 ChainResolver。
type fakeResolver struct {
	clients      map[string]web3.Client
	defaultChain string
}

func (r *fakeResolver) Client(name string) (web3.Client, bool) {
	client, ok := r.clients[name]
	return client, ok
}

func (r *fakeResolver) DefaultClient() (web3.Client, error) {
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "没有默认链")
	}
	return client, nil
}

func (r *fakeResolver) ExplorerURL(name string) string { return "" }

func (r *fakeResolver) Chains() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

func newTestDispatcher(t *testing.T, client web3.Client, opts ...Option) *Dispatcher {
	t.Helper()
	resolver := &fakeResolver{
		clients:      map[string]web3.Client{"ethereum": client},
		defaultChain: "ethereum",
	}
	return New(resolver, opts...)
}

func TestExecuteUnknownTool(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{Tool: "no_such_tool"})
	if err == nil {
		t.Fatalf("期望未知工具返回错误")
	}
	if code := xerrors.CodeOf(err); code != CodeToolUnknown {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestExecuteEmptyToolName(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestGetBalance(t *testing.T) {
	client := &fakeClient{
		balance:  new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)),
		snapshot: web3.ChainSnapshot{ChainID: "1", BlockNumber: "100"},
	}
	d := newTestDispatcher(t, client)

	result, err := d.Execute(context.Background(), Request{Tool: "get_balance", Address: testAccount})
	if err != nil {
		t.Fatalf("查询余额失败: %v", err)
	}
	if !strings.Contains(result.Output, "1.5") {
		t.Fatalf("输出缺少余额: %s", result.Output)
	}
	if result.ChainID != "1" || result.BlockNumber != "100" {
		t.Fatalf("链上快照未附加: %+v", result)
	}
}

func TestGetBalanceRejectsBadAddress(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{Tool: "get_balance", Address: "0x1234"})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidAddress {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestGasPrice(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{gasPrice: big.NewInt(2500000000)})
	result, err := d.Execute(context.Background(), Request{Tool: "gas_price"})
	if err != nil {
		t.Fatalf("查询 gas 价格失败: %v", err)
	}
	if !strings.Contains(result.Output, "2.5 gwei") {
		t.Fatalf("gwei 换算不符: %s", result.Output)
	}
}

func TestChainInfo(t *testing.T) {
	client := &fakeClient{snapshot: web3.ChainSnapshot{ChainID: "11155111", BlockNumber: "42", Notes: "sepolia"}}
	d := newTestDispatcher(t, client)

	result, err := d.Execute(context.Background(), Request{Tool: "chain_info", Chain: "ethereum"})
	if err != nil {
		t.Fatalf("获取链信息失败: %v", err)
	}
	if result.ChainID != "11155111" || result.BlockNumber != "42" {
		t.Fatalf("快照字段不符: %+v", result)
	}
	if !strings.Contains(result.Output, "sepolia") {
		t.Fatalf("输出缺少备注: %s", result.Output)
	}
}

func TestUnknownChainRejected(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{Tool: "chain_info", Chain: "solana"})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestConvertUnits(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	cases := []struct {
		name  string
		args  map[string]any
		want  string
		fails bool
	}{
		{
			name: "ether 转 wei",
			args: map[string]any{"value": "1", "from": "ether", "to": "wei"},
			want: "1000000000000000000 wei",
		},
		{
			name: "wei 转 gwei",
			args: map[string]any{"value": "1500000000", "from": "wei", "to": "gwei"},
			want: "1.5 gwei",
		},
		{
			name: "gwei 转 ether",
			args: map[string]any{"value": "2500000000", "from": "gwei", "to": "ether"},
			want: "2.5 ether",
		},
		{
			name:  "未知单位",
			args:  map[string]any{"value": "1", "from": "satoshi", "to": "wei"},
			fails: true,
		},
		{
			name:  "非法数值",
			args:  map[string]any{"value": "abc", "from": "wei", "to": "gwei"},
			fails: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := d.Execute(context.Background(), Request{Tool: "convert_units", Args: tc.args})
			if tc.fails {
				if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
					t.Fatalf("错误码不符: %s", code)
				}
				return
			}
			if err != nil {
				t.Fatalf("换算失败: %v", err)
			}
			if !strings.Contains(result.Output, tc.want) {
				t.Fatalf("输出不含 %q: %s", tc.want, result.Output)
			}
		})
	}
}

func TestDecodeCalldataWithABI(t *testing.T) {
	const transferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}]`
	parsed, err := abi.JSON(strings.NewReader(transferABI))
	if err != nil {
		t.Fatalf("解析 ABI 失败: %v", err)
	}
	data, err := parsed.Pack("transfer", common.HexToAddress(testAccount), big.NewInt(1000))
	if err != nil {
		t.Fatalf("编码 calldata 失败: %v", err)
	}

	d := newTestDispatcher(t, &fakeClient{})
	result, err := d.Execute(context.Background(), Request{
		Tool: "decode_calldata",
		Args: map[string]any{"data": "0x" + common.Bytes2Hex(data), "abi": transferABI},
	})
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if !strings.Contains(result.Output, "transfer(address,uint256)") {
		t.Fatalf("输出缺少函数签名: %s", result.Output)
	}
	if !strings.Contains(result.Output, "1000") {
		t.Fatalf("输出缺少参数值: %s", result.Output)
	}
}

func TestDecodeCalldataSelectorOnly(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	result, err := d.Execute(context.Background(), Request{
		Tool: "decode_calldata",
		Args: map[string]any{"data": "0xa9059cbb" + strings.Repeat("00", 64)},
	})
	if err != nil {
		t.Fatalf("解码失败: %v", err)
	}
	if !strings.Contains(result.Output, "0xa9059cbb") {
		t.Fatalf("输出缺少选择器: %s", result.Output)
	}
}

func TestDecodeCalldataTooShort(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{
		Tool: "decode_calldata",
		Args: map[string]any{"data": "0xa905"},
	})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInvalidArgument {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestLookupDocs(t *testing.T) {
	provider := knowledge.NewStaticProvider(knowledge.DefaultSnippets(), 3)
	d := newTestDispatcher(t, &fakeClient{}, WithDocsProvider(provider))

	result, err := d.Execute(context.Background(), Request{
		Tool: "lookup_docs",
		Args: map[string]any{"query": "什么是 erc20 代币"},
	})
	if err != nil {
		t.Fatalf("检索失败: %v", err)
	}
	if !strings.Contains(result.Output, "ERC-20") {
		t.Fatalf("输出缺少文档标题: %s", result.Output)
	}
}

func TestLookupDocsWithoutProvider(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	_, err := d.Execute(context.Background(), Request{
		Tool: "lookup_docs",
		Args: map[string]any{"query": "gas"},
	})
	if code := xerrors.CodeOf(err); code != xerrors.CodeInitializationFailure {
		t.Fatalf("错误码不符: %s", code)
	}
}

func TestAnalyzeExternallyOwnedAccount(t *testing.T) {
	client := &fakeClient{
		code:    nil,
		balance: big.NewInt(0).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
	}
	d := newTestDispatcher(t, client)

	result, err := d.Execute(context.Background(), Request{Tool: "analyze_address", Address: testAccount})
	if err != nil {
		t.Fatalf("分析失败: %v", err)
	}
	if !strings.Contains(result.Output, "外部账户") {
		t.Fatalf("输出缺少账户类型: %s", result.Output)
	}
	if result.ReportJSON == "" {
		t.Fatalf("缺少结构化报告")
	}
}

func TestExecutePersistsHistory(t *testing.T) {
	repo, err := mysql.NewMemoryReportRepository(t.TempDir())
	if err != nil {
		t.Fatalf("创建历史仓库失败: %v", err)
	}
	d := newTestDispatcher(t, &fakeClient{}, WithHistoryRepository(repo))

	if _, err := d.Execute(context.Background(), Request{
		Tool: "convert_units",
		Args: map[string]any{"value": "1", "from": "ether", "to": "wei"},
	}); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	records, err := repo.ListLatest(context.Background(), 10)
	if err != nil {
		t.Fatalf("查询历史失败: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("历史记录数不符: %d", len(records))
	}
	if records[0].Tool != "convert_units" {
		t.Fatalf("记录的工具名不符: %s", records[0].Tool)
	}

	history, err := d.ListHistory(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListHistory 失败: %v", err)
	}
	if len(history) != 1 || history[0].Tool != "convert_units" {
		t.Fatalf("ListHistory 返回不符: %+v", history)
	}
}

func TestRegisterToolExtension(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})

	err := d.RegisterTool("echo_args", "回显调用参数", func(_ context.Context, req Request) (*Result, error) {
		return &Result{Output: "echo: " + argString(req.Args, "text")}, nil
	})
	if err != nil {
		t.Fatalf("注册扩展工具失败: %v", err)
	}

	result, err := d.Execute(context.Background(), Request{
		Tool: "echo_args",
		Args: map[string]any{"text": "hello"},
	})
	if err != nil {
		t.Fatalf("执行扩展工具失败: %v", err)
	}
	if result.Output != "echo: hello" {
		t.Fatalf("扩展工具输出不符: %s", result.Output)
	}
	if result.Tool != "echo_args" {
		t.Fatalf("结果未填充工具名: %s", result.Tool)
	}

	descriptors := d.Tools()
	last := descriptors[len(descriptors)-1]
	if last.Name != "echo_args" {
		t.Fatalf("工具清单缺少扩展工具: %+v", descriptors)
	}
}

func TestRegisterToolRejectsConflicts(t *testing.T) {
	d := newTestDispatcher(t, &fakeClient{})
	noop := func(context.Context, Request) (*Result, error) {
		return &Result{Output: "ok"}, nil
	}

	if err := d.RegisterTool("get_balance", "冲突", noop); err == nil {
		t.Fatalf("期望与内置工具冲突时返回错误")
	}
	if err := d.RegisterTool("custom", "自定义", noop); err != nil {
		t.Fatalf("首次注册失败: %v", err)
	}
	if err := d.RegisterTool("custom", "重复", noop); err == nil {
		t.Fatalf("期望重复注册返回错误")
	}
	if err := d.RegisterTool("", "空名", noop); err == nil {
		t.Fatalf("期望空工具名返回错误")
	}
}
