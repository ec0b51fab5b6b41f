// Package cmd implements the command-line interface dctx for the scoped context
// store. It provides commands for serving the store over HTTP and for reading and
// writing scopes directly from the shell.
//
// The package is organized into several subpackages:
//
//   - ctx: Commands for context operations (get, set, unset, keys, del, clean, perf)
//   - serve: Command for starting the HTTP API in front of the store
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dctx -help for a list of all commands.
package cmd
