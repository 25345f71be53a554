package tools

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	xerrors "ChainScope-MCP/internal/errors"
	"ChainScope-MCP/internal/inspect"

	"github.com/ethereum/go-ethereum/common"
)

// getBalance 查询地址的原生代币余额。
func (d *Dispatcher) getBalance(ctx context.Context, req Request) (*Result, error) {
	address := targetAddress(req)
	if address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 address 参数")
	}
	addr, err := inspect.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	balance, err := client.BalanceAt(callCtx, addr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询余额失败",
			xerrors.WithMetadata("address", addr.Hex()))
	}

	result := &Result{
		Chain:  chainName,
		Output: fmt.Sprintf("地址 %s 余额: %s", addr.Hex(), inspect.FormatNativeBalance(balance)),
	}
	d.annotateSnapshot(ctx, client, result)
	return result, nil
}

// getTransaction 按哈希查询交易。
func (d *Dispatcher) getTransaction(ctx context.Context, req Request) (*Result, error) {
	rawHash := argString(req.Args, "hash")
	if rawHash == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 hash 参数")
	}
	if !strings.HasPrefix(rawHash, "0x") || len(rawHash) != 66 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "交易哈希格式不合法",
			xerrors.WithMetadata("hash", rawHash))
	}

	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	tx, pending, err := client.TransactionByHash(callCtx, common.HexToHash(rawHash))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询交易失败",
			xerrors.WithMetadata("hash", rawHash))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "交易: %s\n", tx.Hash().Hex())
	if pending {
		b.WriteString("状态: 待打包\n")
	} else {
		b.WriteString("状态: 已上链\n")
	}
	if to := tx.To(); to != nil {
		fmt.Fprintf(&b, "接收方: %s\n", to.Hex())
	} else {
		b.WriteString("接收方: (合约创建)\n")
	}
	fmt.Fprintf(&b, "金额: %s\n", inspect.FormatNativeBalance(tx.Value()))
	fmt.Fprintf(&b, "nonce: %d\n", tx.Nonce())
	fmt.Fprintf(&b, "gas 上限: %d\n", tx.Gas())

	result := &Result{Chain: chainName, Output: b.String()}
	d.annotateSnapshot(ctx, client, result)
	return result, nil
}

// getBlock 按高度查询区块，缺省使用最新区块。
func (d *Dispatcher) getBlock(ctx context.Context, req Request) (*Result, error) {
	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	var number *big.Int
	if raw := argString(req.Args, "number"); raw != "" && raw != "latest" {
		parsed, ok := new(big.Int).SetString(raw, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "区块高度必须是非负十进制整数",
				xerrors.WithMetadata("number", raw))
		}
		number = parsed
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	block, err := client.BlockByNumber(callCtx, number)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询区块失败")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "区块: %s\n", block.Number().String())
	fmt.Fprintf(&b, "哈希: %s\n", block.Hash().Hex())
	fmt.Fprintf(&b, "时间戳: %d\n", block.Time())
	fmt.Fprintf(&b, "交易数: %d\n", len(block.Transactions()))
	fmt.Fprintf(&b, "gas 用量: %d / %d\n", block.GasUsed(), block.GasLimit())

	result := &Result{
		Chain:       chainName,
		Output:      b.String(),
		BlockNumber: block.Number().String(),
	}
	return result, nil
}

// gasPrice 查询建议 gas 价格。
func (d *Dispatcher) gasPrice(ctx context.Context, req Request) (*Result, error) {
	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	price, err := client.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询 gas 价格失败")
	}

	gwei := convertDecimal(price.String(), 9)
	result := &Result{
		Chain:  chainName,
		Output: fmt.Sprintf("建议 gas 价格: %s wei (%s gwei)", price.String(), gwei),
	}
	d.annotateSnapshot(ctx, client, result)
	return result, nil
}

// getNonce 查询地址的待定 nonce。
func (d *Dispatcher) getNonce(ctx context.Context, req Request) (*Result, error) {
	address := targetAddress(req)
	if address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少 address 参数")
	}
	addr, err := inspect.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	nonce, err := client.PendingNonceAt(callCtx, addr)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "查询 nonce 失败",
			xerrors.WithMetadata("address", addr.Hex()))
	}

	result := &Result{
		Chain:  chainName,
		Output: fmt.Sprintf("地址 %s 待定 nonce: %d", addr.Hex(), nonce),
	}
	d.annotateSnapshot(ctx, client, result)
	return result, nil
}

// chainInfo 返回链标识与最新区块高度。
func (d *Dispatcher) chainInfo(ctx context.Context, req Request) (*Result, error) {
	client, chainName, err := d.resolveClient(req)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()
	snapshot, err := client.FetchChainSnapshot(callCtx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainUnavailable, err, "获取链上信息失败")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "链 ID: %s\n", snapshot.ChainID)
	fmt.Fprintf(&b, "最新区块: %s\n", snapshot.BlockNumber)
	if snapshot.Notes != "" {
		fmt.Fprintf(&b, "备注: %s\n", snapshot.Notes)
	}
	if d.chains != nil {
		fmt.Fprintf(&b, "已配置链: %s\n", strings.Join(d.chains.Chains(), ", "))
	}

	return &Result{
		Chain:       chainName,
		Output:      b.String(),
		ChainID:     snapshot.ChainID,
		BlockNumber: snapshot.BlockNumber,
	}, nil
}
