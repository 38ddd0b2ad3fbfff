// Package remote defines the boundary between daskpool and the
// worker-management API: the capabilities the awaiter and orchestrator
// consume, and an HTTP client that provides them.
package remote
