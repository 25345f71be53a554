package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"ChainScope-MCP/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	eth       *ethclient.Client

	mu       sync.Mutex
	abiCache map[string]abi.ABI
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		eth:       ethclient.NewClient(rpcClient),
		abiCache:  make(map[string]abi.ABI),
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	c.rpcClient = nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// CodeAt returns the deployed bytecode at the given account.
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	code, err := c.eth.CodeAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询合约字节码失败: %w", err)
	}
	return code, nil
}

// BalanceAt returns the native token balance of the account in wei.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	balance, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// CallView packs the described view function, executes eth_call and unpacks
// the outputs. Reverts and empty return payloads are reported as errors so
// callers can treat them as per-function probe failures.
func (c *Client) CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}

	parsed, err := c.parseABI(abiJSON)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("编码调用参数失败: %w", err)
	}

	msg := gethcore.CallMsg{To: &contract, Data: data}
	raw, err := c.eth.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("执行 eth_call 失败: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("函数 %s 无返回数据", method)
	}

	values, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("解码返回数据失败: %w", err)
	}
	return values, nil
}

// TransactionByHash looks up a transaction by hash.
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error) {
	if c == nil || c.eth == nil {
		return nil, false, errors.New("未初始化的以太坊客户端")
	}
	tx, pending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("查询交易失败: %w", err)
	}
	return tx, pending, nil
}

// BlockByNumber returns the block at the given height, nil meaning latest.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*coretypes.Block, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	block, err := c.eth.BlockByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("查询区块失败: %w", err)
	}
	return block, nil
}

// SuggestGasPrice returns the node's gas price suggestion.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询 Gas 价格失败: %w", err)
	}
	return price, nil
}

// PendingNonceAt returns the next nonce of the account including pending txs.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if c == nil || c.eth == nil {
		return 0, errors.New("未初始化的以太坊客户端")
	}
	nonce, err := c.eth.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("查询交易计数失败: %w", err)
	}
	return nonce, nil
}

// parseABI caches parsed fragments; probes reuse the same handful of ABIs on
// every analysis request.
func (c *Client) parseABI(abiJSON string) (abi.ABI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.abiCache[abiJSON]; ok {
		return cached, nil
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}
	c.abiCache[abiJSON] = parsed
	return parsed, nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Client = (*Client)(nil)
