package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can interact with different networks uniformly.
// All calls are read-only; the daemon never signs or broadcasts transactions.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	// CallView invokes a single view function described by an ABI fragment and
	// returns the unpacked output values. A revert, a missing selector or an
	// empty return payload all surface as errors.
	CallView(ctx context.Context, contract common.Address, abiJSON, method string, args ...any) ([]any, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*coretypes.Block, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	Close()
}
