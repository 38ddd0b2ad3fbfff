// Package cluster brings up a Dask cluster on top of the worker-management
// API: a scheduler process on this host, N launched workers pointed at it,
// and a readiness wait on those workers.
//
// Orchestrator is the host side. RunWorker is the other half and runs inside
// each launched worker, where it starts the Dask worker against the
// scheduler address the runtime injected.
package cluster
