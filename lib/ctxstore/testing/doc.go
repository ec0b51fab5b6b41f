// Package testing contains the conformance suite every ctxstore.IContextStore
// implementation is run against. Call RunContextStoreTests with a factory that
// returns a fresh, unopened store for the given prefix.
package testing
