// Package api exposes the REST surface of the daemon: synchronous tool
// invocation, asynchronous task submission and inspection, execution history
// and health/metrics endpoints.
package api
