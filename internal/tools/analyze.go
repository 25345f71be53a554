package tools

import (
	"context"
	"encoding/json"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/inspect"
	"ChainScope-MCP/internal/web3"
)

// analyzeAddress 执行地址体检并返回人类可读输出与结构化报告。
func (d *Dispatcher) analyzeAddress(ctx context.Context, req Request) (*Result, error) {
	address := targetAddress(req)
	if address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 address 参数")
	}

	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	inspector := d.inspectorFor(chainName, client)
	report, err := inspector.Analyze(ctx, address)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(report)
	if err != nil {
		return nil, xerrors.Wrap(CodeToolExecution, err, "序列化分析报告失败")
	}

	result := &Result{
		Chain:      chainName,
		Output:     report.Render(),
		ReportJSON: string(encoded),
	}
	d.annotateSnapshot(ctx, client, result)
	return result, nil
}

// inspectorFor 按链名缓存 Inspector，分类器的候选表在各链之间共享语义。
func (d *Dispatcher) inspectorFor(chain string, client web3.Client) *inspect.Inspector {
	d.mu.Lock()
	defer d.mu.Unlock()
	if inspector, ok := d.inspectors[chain]; ok {
		return inspector
	}
	opts := []inspect.Option{inspect.WithCallTimeout(d.callTimeout)}
	if d.verifier != nil {
		opts = append(opts, inspect.WithRegistry(d.verifier))
	}
	if d.chains != nil {
		if url := d.chains.ExplorerURL(chain); url != "" {
			opts = append(opts, inspect.WithExplorerURL(url))
		}
	}
	inspector := inspect.New(client, opts...)
	d.inspectors[chain] = inspector
	return inspector
}
