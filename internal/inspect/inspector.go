package inspect

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/verify"
	"ChainScope-MCP/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// ChainReader 是体检流程所需的最小链上读取能力，由 web3.Client 满足。
type ChainReader interface {
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error)
}

// RegistryLookup 抽象验证注册表查询，nil 记录表示无验证数据。
type RegistryLookup interface {
	Lookup(ctx context.Context, address string) (*verify.Record, error)
}

// defaultCallTimeout 限定每次链上或注册表子调用的时长，保证单次分析的
// 最坏耗时与独立子调用数量成正比，而不会被某个慢调用拖垮。
const defaultCallTimeout = 5 * time.Second

// Inspector 是地址分析的唯一入口，按“校验 → 判定账户类型 → 并发采集 →
// 汇总”的顺序组装报告。
type Inspector struct {
	chain             ChainReader
	registry          RegistryLookup
	classifier        *Classifier
	candidateOverride []Candidate
	callTimeout       time.Duration
	explorerURL       string
}

// Option 定义可选的 Inspector 配置。
type Option func(*Inspector)

// WithRegistry 配置验证注册表客户端；未配置时报告恒为“未验证”。
func WithRegistry(registry RegistryLookup) Option {
	return func(i *Inspector) {
		i.registry = registry
	}
}

// WithCallTimeout 覆盖单次子调用的超时时间。
func WithCallTimeout(timeout time.Duration) Option {
	return func(i *Inspector) {
		if timeout > 0 {
			i.callTimeout = timeout
		}
	}
}

// WithExplorerURL 配置区块浏览器地址，用于未验证合约的详情链接。
func WithExplorerURL(url string) Option {
	return func(i *Inspector) {
		i.explorerURL = url
	}
}

// WithCandidates 覆盖默认候选接口表，主要用于测试。
func WithCandidates(candidates []Candidate) Option {
	return func(i *Inspector) {
		i.candidateOverride = candidates
	}
}

// New 创建 Inspector。
func New(chain ChainReader, opts ...Option) *Inspector {
	ins := &Inspector{
		chain:       chain,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ins)
		}
	}
	ins.classifier = NewClassifier(NewProber(chain, ins.callTimeout), ins.candidateOverride)
	return ins
}

// Analyze 分析一个地址并返回不可变报告。只有两种失败出口：地址不合法
// （INVALID_ADDRESS，未发起任何网络调用）与账户类型或余额无法判定
// （CHAIN_UNAVAILABLE）。其余一切子调用失败都降级为报告中的显式
// “未知/不可用”标记。
func (i *Inspector) Analyze(ctx context.Context, rawAddress string) (*Report, error) {
	if i == nil || i.chain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链上读取客户端")
	}

	addr, err := ParseAddress(rawAddress)
	if err != nil {
		return nil, err
	}
	canonical := addr.Hex()

	kind, codeSize, err := i.resolveKind(ctx, addr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "无法判定账户类型",
			xerrors.WithMetadata("address", canonical))
	}

	// 外部账户短路：分类被整个跳过而不是“尝试后失败”，报告绝不携带
	// 误导性的“未知合约”分类。
	if kind == KindExternallyOwned {
		balance, err := i.fetchBalance(ctx, addr)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询余额失败",
				xerrors.WithMetadata("address", canonical))
		}
		return &Report{
			Address: canonical,
			Kind:    KindExternallyOwned,
			Balance: FormatNativeBalance(balance),
		}, nil
	}

	// 余额、分类与注册表查询互不依赖，并发执行后汇总。
	var (
		wg             sync.WaitGroup
		balance        *big.Int
		balanceErr     error
		classification Classification
		record         *verify.Record
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		balance, balanceErr = i.fetchBalance(ctx, addr)
	}()
	go func() {
		defer wg.Done()
		classification = i.classifier.Classify(ctx, addr)
	}()
	go func() {
		defer wg.Done()
		record = i.lookupVerification(ctx, canonical)
	}()
	wg.Wait()

	if balanceErr != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, balanceErr, "查询余额失败",
			xerrors.WithMetadata("address", canonical))
	}

	return &Report{
		Address:           canonical,
		Kind:              KindContract,
		Balance:           FormatNativeBalance(balance),
		BytecodeSizeBytes: codeSize,
		Classification:    &classification,
		Verification:      record,
		ExplorerURL:       i.explorerURL,
	}, nil
}

// resolveKind 执行一次 getCode 判定账户类型，该调用是后续所有分类工作
// 的闸门。
func (i *Inspector) resolveKind(ctx context.Context, addr common.Address) (AccountKind, int, error) {
	callCtx, cancel := i.callContext(ctx)
	defer cancel()

	code, err := i.chain.CodeAt(callCtx, addr)
	if err != nil {
		return "", 0, err
	}
	if len(code) == 0 {
		return KindExternallyOwned, 0, nil
	}
	return KindContract, len(code), nil
}

func (i *Inspector) fetchBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	callCtx, cancel := i.callContext(ctx)
	defer cancel()
	return i.chain.BalanceAt(callCtx, addr)
}

// lookupVerification 查询注册表。验证数据是建议性的，任何失败都降级为
// “未验证”，只留下一条日志。
func (i *Inspector) lookupVerification(ctx context.Context, address string) *verify.Record {
	if i.registry == nil {
		return nil
	}
	callCtx, cancel := i.callContext(ctx)
	defer cancel()

	record, err := i.registry.Lookup(callCtx, address)
	if err != nil {
		logger.L().Warn("验证注册表查询失败，按未验证处理",
			slog.String("address", address),
			slog.Any("error", err),
		)
		return nil
	}
	return record
}

func (i *Inspector) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if i.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, i.callTimeout)
}
