// Package rstore implements ctxstore.IContextStore on top of Redis using go-redis.
//
// Every scope is one Redis hash named after the prefixed scope, every key is a field
// of that hash and every value is stored as JSON text. A Store owns exactly one
// connection, which is opened with Open and released with Close.
//
// Delete and (unless Config.AwaitUnset is set) the removal of keys are fire-and-forget.
// They run in the background, failures are only logged and Close waits for them
// before disconnecting.
package rstore
