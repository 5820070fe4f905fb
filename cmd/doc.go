// Package cmd implements the command-line interface for the fKV key-value
// store client. It provides a hierarchical command structure for
// inspecting and manipulating a store through the configured engine.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (get, put, delete, iteration, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See fkv -help for a list of all commands.
package cmd
