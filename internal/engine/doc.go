// Package engine is the reference worker runtime. It launches workers on the
// local host through the backend registry, tracks their lifecycle in the
// store, and serves the same listing, launch and stop operations a remote
// worker-management API would.
package engine
