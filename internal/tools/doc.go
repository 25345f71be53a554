// Package tools contains the dispatcher responsible for translating MCP tool
// invocations into read-only chain lookups. It coordinates address analysis,
// raw chain queries, unit conversion and documentation search, and records
// execution history for auditing.
package tools
