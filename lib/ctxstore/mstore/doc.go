// Package mstore provides an in-memory ctxstore.IContextStore backed by xsync maps.
// It follows the same prefixing and codec rules as rstore and is used for tests and
// local development.
package mstore
