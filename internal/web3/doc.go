// Package web3 houses blockchain connectivity utilities, including RPC
// clients, ABI-level view call helpers, and multi-chain configuration. It
// gives the inspection and tool layers standardized read-only access to
// supported networks such as Ethereum, BSC, and Polygon.
package web3
