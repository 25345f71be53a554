package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/inspect"
	"ChainScope-MCP/internal/knowledge"
	"ChainScope-MCP/internal/storage/mysql"
	"ChainScope-MCP/internal/web3"
)

// Request 描述了一次工具调用。
type Request struct {
	ID      string         `json:"id,omitempty"`
	Tool    string         `json:"tool"`
	Chain   string         `json:"chain,omitempty"`
	Address string         `json:"address,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
}

// Result 汇总一次工具调用的输出。
type Result struct {
	Tool        string `json:"tool"`
	Chain       string `json:"chain,omitempty"`
	Output      string `json:"output"`
	ReportJSON  string `json:"report_json,omitempty"`
	ChainID     string `json:"chain_id,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Descriptor 描述一个已注册工具，供 API 层返回工具清单。
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

const (
	CodeToolUnknown   xerrors.Code = "TOOL_UNKNOWN"
	CodeToolExecution xerrors.Code = "TOOL_EXECUTION_FAILED"
)

func init() {
	xerrors.Register(CodeToolUnknown, xerrors.Attributes{
		Message:   "unknown tool",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeToolExecution, xerrors.Attributes{
		Message:   "tool execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// ToolFunc 是外部扩展工具的执行函数签名。
type ToolFunc func(ctx context.Context, req Request) (*Result, error)

type extensionTool struct {
	description string
	fn          ToolFunc
}

// ChainResolver 抽象链客户端的查找能力，由 provider.Registry 满足。
type ChainResolver interface {
	Client(name string) (web3.Client, bool)
	DefaultClient() (web3.Client, error)
	ExplorerURL(name string) string
	Chains() []string
}

// Dispatcher 按工具名分发调用，是系统的业务核心。
type Dispatcher struct {
	chains      ChainResolver
	docs        knowledge.Provider
	history     mysql.ReportRepository
	verifier    inspect.RegistryLookup
	callTimeout time.Duration
	resultHook  func(Result)

	mu         sync.Mutex
	inspectors map[string]*inspect.Inspector

	extMu      sync.RWMutex
	extensions map[string]extensionTool
}

// Option 定义可选的 Dispatcher 配置。
type Option func(*Dispatcher)

// WithDocsProvider 配置文档库，供 lookup_docs 工具使用。
func WithDocsProvider(provider knowledge.Provider) Option {
	return func(d *Dispatcher) {
		d.docs = provider
	}
}

// WithHistoryRepository 配置执行历史落库。
func WithHistoryRepository(repo mysql.ReportRepository) Option {
	return func(d *Dispatcher) {
		d.history = repo
	}
}

// WithVerifier 配置源码验证注册表客户端。
func WithVerifier(verifier inspect.RegistryLookup) Option {
	return func(d *Dispatcher) {
		d.verifier = verifier
	}
}

// WithCallTimeout 设置单次链上子调用的超时时间。
func WithCallTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.callTimeout = timeout
		}
	}
}

// WithResultHook 注册执行完成后的回调，供审计类插件消费执行结果。
// 回调在 Execute 返回前同步触发，不应执行耗时操作。
func WithResultHook(hook func(Result)) Option {
	return func(d *Dispatcher) {
		d.resultHook = hook
	}
}

// New 创建 Dispatcher。
func New(chains ChainResolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		chains:      chains,
		callTimeout: 5 * time.Second,
		inspectors:  make(map[string]*inspect.Inspector),
		extensions:  make(map[string]extensionTool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// RegisterTool 注册一个扩展工具，供插件在启动阶段挂载额外能力。
func (d *Dispatcher) RegisterTool(name, description string, fn ToolFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "扩展工具名不能为空")
	}
	if fn == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "扩展工具执行函数不能为空")
	}
	for _, builtin := range d.builtinDescriptors() {
		if builtin.Name == name {
			return xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("扩展工具 %s 与内置工具冲突", name))
		}
	}
	d.extMu.Lock()
	defer d.extMu.Unlock()
	if _, exists := d.extensions[name]; exists {
		return xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("扩展工具 %s 已注册", name))
	}
	d.extensions[name] = extensionTool{description: description, fn: fn}
	return nil
}

// Tools 返回已注册的工具清单，扩展工具排在内置工具之后。
func (d *Dispatcher) Tools() []Descriptor {
	descriptors := d.builtinDescriptors()

	d.extMu.RLock()
	names := make([]string, 0, len(d.extensions))
	for name := range d.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		descriptors = append(descriptors, Descriptor{Name: name, Description: d.extensions[name].description})
	}
	d.extMu.RUnlock()
	return descriptors
}

func (d *Dispatcher) builtinDescriptors() []Descriptor {
	return []Descriptor{
		{Name: "analyze_address", Description: "判定地址类型并对合约做标准分类、元数据采集与源码验证查询"},
		{Name: "get_balance", Description: "查询地址的原生代币余额"},
		{Name: "get_transaction", Description: "按哈希查询交易"},
		{Name: "get_block", Description: "按高度查询区块，缺省为最新区块"},
		{Name: "gas_price", Description: "查询当前建议 gas 价格"},
		{Name: "get_nonce", Description: "查询地址的待定 nonce"},
		{Name: "chain_info", Description: "返回链标识与最新区块高度"},
		{Name: "convert_units", Description: "在 wei、gwei 与 ether 之间转换数值"},
		{Name: "decode_calldata", Description: "解析交易 calldata 的函数选择器与参数"},
		{Name: "lookup_docs", Description: "检索链上概念文档"},
	}
}

// Execute 执行单个工具调用并在配置了历史仓库时落库。
func (d *Dispatcher) Execute(ctx context.Context, req Request) (*Result, error) {
	if d == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "工具分发器未初始化")
	}
	tool := strings.TrimSpace(req.Tool)
	if tool == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "工具名不能为空")
	}

	var (
		result *Result
		err    error
	)
	switch tool {
	case "analyze_address":
		result, err = d.analyzeAddress(ctx, req)
	case "get_balance":
		result, err = d.getBalance(ctx, req)
	case "get_transaction":
		result, err = d.getTransaction(ctx, req)
	case "get_block":
		result, err = d.getBlock(ctx, req)
	case "gas_price":
		result, err = d.gasPrice(ctx, req)
	case "get_nonce":
		result, err = d.getNonce(ctx, req)
	case "chain_info":
		result, err = d.chainInfo(ctx, req)
	case "convert_units":
		result, err = d.convertUnits(req)
	case "decode_calldata":
		result, err = d.decodeCalldata(req)
	case "lookup_docs":
		result, err = d.lookupDocs(req)
	default:
		d.extMu.RLock()
		ext, ok := d.extensions[tool]
		d.extMu.RUnlock()
		if !ok {
			return nil, xerrors.New(CodeToolUnknown, fmt.Sprintf("未知工具: %s", tool),
				xerrors.WithMetadata("tool", tool))
		}
		result, err = ext.fn(ctx, req)
		if err == nil && result == nil {
			err = xerrors.New(CodeToolExecution, fmt.Sprintf("扩展工具 %s 未返回结果", tool))
		}
	}
	if err != nil {
		return nil, err
	}

	result.Tool = tool
	result.CreatedAt = time.Now().Unix()

	if d.history != nil {
		record := &mysql.ReportRecord{
			Tool:        tool,
			Chain:       result.Chain,
			Address:     req.Address,
			Output:      result.Output,
			ReportJSON:  result.ReportJSON,
			ChainID:     result.ChainID,
			BlockNumber: result.BlockNumber,
			CreatedAt:   result.CreatedAt,
			UpdatedAt:   result.CreatedAt,
		}
		if err := d.history.Create(ctx, record); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存执行记录失败")
		}
	}
	if d.resultHook != nil {
		d.resultHook(*result)
	}
	return result, nil
}

// ListHistory 获取最近的工具执行记录。
func (d *Dispatcher) ListHistory(ctx context.Context, limit int) ([]Result, error) {
	if d.history == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置执行历史仓库")
	}
	records, err := d.history.ListLatest(ctx, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	results := make([]Result, 0, len(records))
	for _, record := range records {
		results = append(results, Result{
			Tool:        record.Tool,
			Chain:       record.Chain,
			Output:      record.Output,
			ReportJSON:  record.ReportJSON,
			ChainID:     record.ChainID,
			BlockNumber: record.BlockNumber,
			CreatedAt:   record.CreatedAt,
		})
	}
	return results, nil
}

// resolveClient 根据请求中的链名查找客户端，空链名使用默认链。
func (d *Dispatcher) resolveClient(req Request) (web3.Client, string, error) {
	if d.chains == nil {
		return nil, "", xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端注册表")
	}
	name := strings.TrimSpace(req.Chain)
	if name == "" {
		client, err := d.chains.DefaultClient()
		if err != nil {
			return nil, "", xerrors.Wrap(xerrors.CodeInitializationFailure, err, "获取默认链客户端失败")
		}
		return client, "", nil
	}
	client, ok := d.chains.Client(name)
	if !ok {
		return nil, "", xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未配置的链: %s", name),
			xerrors.WithMetadata("chain", name))
	}
	return client, name, nil
}

// annotateSnapshot 尽力补充链标识与区块高度，失败不影响工具结果。
func (d *Dispatcher) annotateSnapshot(ctx context.Context, client web3.Client, result *Result) {
	snapCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	snapshot, err := client.FetchChainSnapshot(snapCtx)
	if err != nil {
		return
	}
	result.ChainID = snapshot.ChainID
	result.BlockNumber = snapshot.BlockNumber
}

// argString 从调用参数中取出字符串值，数值会被格式化。
func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// targetAddress 优先取请求级地址，再退回参数中的 address。
func targetAddress(req Request) string {
	if addr := strings.TrimSpace(req.Address); addr != "" {
		return addr
	}
	return argString(req.Args, "address")
}
