// Package backend defines the interface that workload runtimes implement and
// the registry that maps a workload's runtime name to one of them.
package backend
