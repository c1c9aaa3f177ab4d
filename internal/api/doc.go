// Package api implements the bridge's local HTTP API.
//
// This package provides:
//   - Health and link status for supervisors and load balancers
//   - Read access to the cached light states and their recorded history
//   - Control of the command link's pending queue (enqueue and flush)
//   - The Prometheus /metrics endpoint
//
// # Graceful Degradation
//
// Every dependency other than the light state source and the command queue
// is optional. Without a history repository the history route answers 503,
// and without a metrics handler /metrics is not mounted.
package api
