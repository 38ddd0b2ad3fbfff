// Package backend defines the interface that worker runtimes implement and
// the registry the engine uses to pick one by runtime name.
package backend
